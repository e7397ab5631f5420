// Package filter defines the contract every plugin — native or WASM —
// implements, and the outcome vocabulary the runner acts on (spec.md
// §4.4).
package filter

import (
	"github.com/cardinal-rs/cardinal/internal/destination"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
	"github.com/cardinal-rs/cardinal/internal/provider"
)

// Outcome is a filter invocation's result.
type Outcome int

const (
	// Continue lets the chain proceed to the next filter (or upstream).
	Continue Outcome = iota
	// Responded means the filter fully populated the response; no
	// further request filters run and the upstream is never contacted.
	Responded
)

// Filter is invoked with (session_view, backend, container) per filter,
// in both the request and response phase, and returns Continue or
// Responded. Native (builtin) filters implement this directly; WASM
// filters are adapted to it by internal/wasmhost.
type Filter interface {
	Name() string
	Invoke(view *filterctx.SessionView, backend *destination.Destination, container *provider.Container) (Outcome, error)
}
