// Package builtinfilters provides Cardinal's natively compiled filters —
// the "Builtin" half of the Plugin Registry's tagged union. These are
// simple, self-contained filters exercised by the reference proxy host
// and its tests; real deployments add their own via the same
// registry.BuiltinFactory hook.
package builtinfilters

import (
	"fmt"

	"github.com/cardinal-rs/cardinal/internal/destination"
	"github.com/cardinal-rs/cardinal/internal/filter"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
	"github.com/cardinal-rs/cardinal/internal/provider"
)

// New resolves a builtin filter by its registered name. Unknown names are
// a fatal config error (translated by internal/registry).
func New(name string) (filter.Filter, error) {
	switch name {
	case "request-id-tag":
		return &requestIDTag{}, nil
	case "upstream-header-strip":
		return &upstreamHeaderStrip{}, nil
	default:
		return nil, fmt.Errorf("unknown builtin filter %q", name)
	}
}

// requestIDTag copies the inbound X-Request-Id header (or the fixed
// placeholder "generated" when it is absent) into req_vars so downstream
// filters can correlate a request across phases, and in the outbound phase
// echoes it as the X-Request-Id response header.
type requestIDTag struct{}

func (f *requestIDTag) Name() string { return "request-id-tag" }

func (f *requestIDTag) Invoke(view *filterctx.SessionView, _ *destination.Destination, _ *provider.Container) (filter.Outcome, error) {
	id := view.Header("X-Request-Id")
	if id == "" {
		id = "generated"
	}
	view.SetReqVar("request.id", id)
	if view.Phase() == filterctx.Outbound {
		view.SetResponseHeader("X-Request-Id", id)
	}
	return filter.Continue, nil
}

// upstreamHeaderStrip is an outbound-only filter that overwrites the
// upstream's Server response header with "cardinal". It removes no other
// header.
type upstreamHeaderStrip struct{}

func (f *upstreamHeaderStrip) Name() string { return "upstream-header-strip" }

func (f *upstreamHeaderStrip) Invoke(view *filterctx.SessionView, _ *destination.Destination, _ *provider.Container) (filter.Outcome, error) {
	if view.Phase() != filterctx.Outbound {
		return filter.Continue, nil
	}
	view.SetResponseHeader("Server", "cardinal")
	return filter.Continue, nil
}
