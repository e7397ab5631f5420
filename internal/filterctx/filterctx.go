// Package filterctx owns the per-request shared state that flows through
// a single request's filter chain: request/response headers, req_vars,
// pending status, and the short-circuit flag. It is owned by exactly one
// goroutine for the duration of the request, so no internal locking is
// needed (spec.md §5).
package filterctx

import "net/http"

// Phase distinguishes which half of the pipeline a filter is running in.
type Phase int

const (
	Inbound Phase = iota
	Outbound
)

// RequestContext is the mutable state threaded through one request's
// filter chain, from the first inbound filter to the last outbound one.
type RequestContext struct {
	Request *http.Request

	// ReqVars is the per-request string-to-string shared variable map,
	// visible to every filter of this request in both phases.
	ReqVars map[string]string

	// PendingRequestHeaders are staged request header mutations, applied
	// by the proxy host before forwarding upstream.
	PendingRequestHeaders http.Header

	// ResponseStatus and ResponseHeaders exist only once the outbound
	// phase begins; they hold the response view a filter may mutate.
	ResponseStatus  int
	ResponseHeaders http.Header

	// PendingStatus overrides ResponseStatus when set by a filter via
	// set_status (outbound only).
	PendingStatus *int

	// ShortCircuited is set by the first Responded outcome during the
	// request phase; once true, remaining request filters are skipped
	// and the proxy host must not contact the upstream.
	ShortCircuited bool
}

// New creates an empty RequestContext for req, with path parameters
// already seeded into ReqVars under "path.<name>" keys by the resolver.
func New(req *http.Request, pathParams map[string]string) *RequestContext {
	vars := make(map[string]string, len(pathParams))
	for k, v := range pathParams {
		vars[k] = v
	}
	return &RequestContext{
		Request:               req,
		ReqVars:               vars,
		PendingRequestHeaders: http.Header{},
	}
}

// BeginOutbound attaches the upstream response's status/headers so
// outbound filters can observe and mutate them.
func (rc *RequestContext) BeginOutbound(status int, headers http.Header) {
	rc.ResponseStatus = status
	rc.ResponseHeaders = headers.Clone()
	if rc.ResponseHeaders == nil {
		rc.ResponseHeaders = http.Header{}
	}
}

// FinalStatus returns the response status to send, honouring any
// pending override staged by an outbound filter.
func (rc *RequestContext) FinalStatus() int {
	if rc.PendingStatus != nil {
		return *rc.PendingStatus
	}
	return rc.ResponseStatus
}

// SessionView is the read/write surface handed to a filter invocation,
// matching spec.md §4.4's "(session_view, backend, container)" contract.
// It exposes headers, query, and (outbound only) the response being
// assembled, without handing out the whole RequestContext.
type SessionView struct {
	ctx   *RequestContext
	phase Phase
}

// NewSessionView wraps ctx for a filter invocation running in phase.
func NewSessionView(ctx *RequestContext, phase Phase) *SessionView {
	return &SessionView{ctx: ctx, phase: phase}
}

func (s *SessionView) Phase() Phase { return s.phase }

// Header returns a request header value, ASCII-case-insensitive.
func (s *SessionView) Header(name string) string {
	return s.ctx.Request.Header.Get(name)
}

// QueryParam returns the first occurrence of a URL query parameter.
func (s *SessionView) QueryParam(key string) string {
	return s.ctx.Request.URL.Query().Get(key)
}

// HeaderOK returns a request header value along with whether the header
// is present at all, distinguishing "absent" from "present but empty"
// (net/http.Header.Get collapses both to "").
func (s *SessionView) HeaderOK(name string) (string, bool) {
	values, ok := s.ctx.Request.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// QueryParamOK returns a URL query parameter value along with whether the
// key is present at all, distinguishing "absent" from "present but empty"
// (url.Values.Get collapses both to "").
func (s *SessionView) QueryParamOK(key string) (string, bool) {
	q := s.ctx.Request.URL.Query()
	if !q.Has(key) {
		return "", false
	}
	return q.Get(key), true
}

// SetRequestHeader stages a request header mutation. Valid in both
// phases per the resolved Open Question in SPEC_FULL.md §9(a) — inbound
// staging affects the forwarded request; outbound staging is a no-op on
// the wire but still recorded for observability.
func (s *SessionView) SetRequestHeader(name, value string) {
	s.ctx.PendingRequestHeaders.Set(name, value)
}

// SetResponseHeader stages a response header mutation. Outbound phase
// only; callers must check Phase() first — wasmhost enforces the trap,
// this method is also used directly by native filters which are trusted
// to respect the phase themselves.
func (s *SessionView) SetResponseHeader(name, value string) {
	if s.ctx.ResponseHeaders == nil {
		s.ctx.ResponseHeaders = http.Header{}
	}
	s.ctx.ResponseHeaders.Set(name, value)
}

// SetStatus stages a response status override. Outbound phase only.
func (s *SessionView) SetStatus(code int) {
	s.ctx.PendingStatus = &code
}

// ReqVar reads a per-request shared variable.
func (s *SessionView) ReqVar(key string) (string, bool) {
	v, ok := s.ctx.ReqVars[key]
	return v, ok
}

// SetReqVar writes a per-request shared variable, visible to every
// subsequent filter of this request in both phases.
func (s *SessionView) SetReqVar(key, value string) {
	s.ctx.ReqVars[key] = value
}

// ShortCircuit marks the request as responded, per spec.md §4.4.
func (s *SessionView) ShortCircuit() {
	s.ctx.ShortCircuited = true
}
