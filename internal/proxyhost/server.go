// Package proxyhost is the [EXPANDED] reference proxy host: it owns the
// net/http listener and wires the Destination Resolver, Plugin Registry,
// and Plugin Runner into a single http.Handler that relays bytes between
// client and backend, per spec.md §2's "data flow per request" contract.
// The HTTP server itself is explicitly out of the core's scope; this
// package is the ambient wiring that exercises the core end to end.
package proxyhost

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
	"github.com/cardinal-rs/cardinal/internal/config"
	"github.com/cardinal-rs/cardinal/internal/destination"
	"github.com/cardinal-rs/cardinal/internal/filter"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
	"github.com/cardinal-rs/cardinal/internal/metrics"
	"github.com/cardinal-rs/cardinal/internal/registry"
	"github.com/cardinal-rs/cardinal/internal/runner"
)

// Server is the black-box proxy host described by spec.md §1: it accepts
// connections, asks the core to pick a backend and run filters, and
// relays or stages the response.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server

	resolver *destination.Resolver
	registry *registry.Registry
	runner   *runner.Runner
	logger   *zap.Logger

	globalRequestFilters  []filter.Filter
	globalResponseFilters []filter.Filter

	metrics *metrics.Registry
}

// New wires the resolver, registry, and runner into a single handler and
// an *http.Server bound to cfg.Server.Address, mirroring the teacher's
// NewServer(cfg) + cfg-driven timeouts shape.
func New(cfg *config.Config, resolver *destination.Resolver, reg *registry.Registry, run *runner.Runner, logger *zap.Logger) (*Server, error) {
	globalReq, err := reg.Resolve(cfg.Server.GlobalRequestFilters)
	if err != nil {
		return nil, err
	}
	globalResp, err := reg.Resolve(cfg.Server.GlobalResponseFilters)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:                   cfg,
		resolver:              resolver,
		registry:              reg,
		runner:                run,
		logger:                logger,
		globalRequestFilters:  globalReq,
		globalResponseFilters: globalResp,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      http.HandlerFunc(s.serveHTTP),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// WithMetrics attaches the proxy-level counters from internal/metrics.
// Optional: a Server with no metrics registry attached skips recording.
func (s *Server) WithMetrics(m *metrics.Registry) *Server {
	s.metrics = m
	return s
}

// ListenAndServe starts the listener; it blocks until Shutdown is called
// or a fatal listener error occurs.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	selection, err := s.resolver.Select(r)
	if err != nil {
		s.recordNoBackend(err)
		s.writeNoBackend(w, err)
		return
	}

	destFilters, err := s.registry.Resolve(selection.Backend.Filters)
	if err != nil {
		// Unreachable in practice: config.Validate already checked every
		// destination middleware name against the declared plugins, and
		// registry.Build built every declared plugin at startup.
		s.writeFatal(w, err)
		return
	}

	reqCtx := filterctx.New(r, selection.PathParams)
	r.URL.Path = selection.ForwardPath

	outcome := s.runner.RunRequestFilters(reqCtx, selection.Backend, s.globalRequestFilters, destFilters)

	switch outcome {
	case runner.Fatal:
		s.runOutboundAndWrite(w, reqCtx, selection.Backend, destFilters, 500, http.Header{}, nil)
		return
	case runner.Responded:
		s.runOutboundAndWrite(w, reqCtx, selection.Backend, destFilters, statusOrDefault(reqCtx, 200), reqCtx.ResponseHeaders, nil)
		return
	}

	for name, values := range reqCtx.PendingRequestHeaders {
		r.Header[name] = values
	}

	status, respHeaders, body, proxyErr := s.forwardUpstream(r, selection.Backend.UpstreamAddr)
	if proxyErr != nil {
		s.logger.Warn("upstream request failed", zap.String("backend", selection.Backend.Name), zap.Error(proxyErr))
		s.runOutboundAndWrite(w, reqCtx, selection.Backend, destFilters, 502, http.Header{}, nil)
		return
	}

	reqCtx.BeginOutbound(status, respHeaders)
	s.runOutboundAndWrite(w, reqCtx, selection.Backend, destFilters, status, reqCtx.ResponseHeaders, body)
}

func statusOrDefault(ctx *filterctx.RequestContext, def int) int {
	if ctx.ResponseStatus != 0 {
		return ctx.ResponseStatus
	}
	return def
}

// runOutboundAndWrite always runs the response phase in full (spec.md
// §4.4 "response phase is still executed in full"), then writes whatever
// status/headers the phase staged, followed by body.
func (s *Server) runOutboundAndWrite(w http.ResponseWriter, reqCtx *filterctx.RequestContext, backend *destination.Destination, destFilters []filter.Filter, fallbackStatus int, fallbackHeaders http.Header, body []byte) {
	if reqCtx.ResponseHeaders == nil {
		reqCtx.BeginOutbound(fallbackStatus, fallbackHeaders)
	}
	outcome := s.runner.RunResponseFilters(reqCtx, backend, destFilters, s.globalResponseFilters)
	if outcome == runner.Fatal {
		w.WriteHeader(http.StatusInternalServerError)
		s.recordRequest(backend, http.StatusInternalServerError)
		return
	}
	for name, values := range reqCtx.ResponseHeaders {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	status := reqCtx.FinalStatus()
	w.WriteHeader(status)
	_, _ = w.Write(body)
	s.recordRequest(backend, status)
}

func (s *Server) recordRequest(backend *destination.Destination, status int) {
	if s.metrics == nil {
		return
	}
	name := "unknown"
	if backend != nil {
		name = backend.Name
	}
	s.metrics.RequestsTotal.WithLabelValues(name, statusClass(status)).Inc()
}

func (s *Server) recordNoBackend(err error) {
	if s.metrics == nil {
		return
	}
	reason := "unknown"
	if nb, ok := err.(*cardinalerr.NoBackend); ok {
		reason = nb.Reason.String()
	}
	s.metrics.NoBackendTotal.WithLabelValues(reason).Inc()
}

func statusClass(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "other"
	}
}

func (s *Server) writeNoBackend(w http.ResponseWriter, err error) {
	status := http.StatusNotFound
	if nb, ok := err.(*cardinalerr.NoBackend); ok && nb.StatusHint != 0 {
		status = nb.StatusHint
	}
	w.WriteHeader(status)
}

func (s *Server) writeFatal(w http.ResponseWriter, err error) {
	s.logger.Warn("fatal request error", zap.Error(err))
	w.WriteHeader(http.StatusInternalServerError)
}

// forwardUpstream relays the request to addr using httputil.ReverseProxy,
// capturing the upstream response so outbound filters can observe and
// mutate it before it reaches the client.
func (s *Server) forwardUpstream(r *http.Request, addr string) (status int, headers http.Header, body []byte, err error) {
	target := &url.URL{Scheme: "http", Host: addr}
	rec := newResponseRecorder()

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, e error) {
		err = fmt.Errorf("proxying to %s: %w", addr, e)
	}
	proxy.ServeHTTP(rec, r)
	if err != nil {
		return 0, nil, nil, err
	}
	return rec.status, rec.Header(), rec.body.Bytes(), nil
}
