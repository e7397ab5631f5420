package wasmhost

import (
	"context"
	"os"

	"github.com/cardinal-rs/cardinal/internal/destination"
	"github.com/cardinal-rs/cardinal/internal/filter"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
	"github.com/cardinal-rs/cardinal/internal/provider"
)

// wasmFilter adapts a GuestModule to the filter.Filter contract so the
// Plugin Registry and Runner never need to distinguish native from WASM
// filters after construction (spec.md §9 "one abstraction").
type wasmFilter struct {
	name    string
	module  *GuestModule
	runtime *Runtime
}

// LoadFilter reads and loads a guest module from path, validating its
// export surface, and returns it already adapted to filter.Filter.
func LoadFilter(runtime *Runtime, name, path string) (filter.Filter, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	module, err := runtime.Load(name, bytes)
	if err != nil {
		return nil, err
	}
	return &wasmFilter{name: name, module: module, runtime: runtime}, nil
}

func (f *wasmFilter) Name() string { return f.name }

// Invoke serialises the view's body (empty for Cardinal's HTTP-facing
// filters, which observe state through host imports rather than a
// marshalled struct) and runs the guest, translating its continue/respond
// signal to filter.Outcome.
func (f *wasmFilter) Invoke(view *filterctx.SessionView, _ *destination.Destination, _ *provider.Container) (filter.Outcome, error) {
	phase := view.Phase()
	cont, err := f.runtime.Run(context.Background(), f.module, view, phase, nil)
	if err != nil {
		return filter.Responded, err
	}
	if cont {
		return filter.Continue, nil
	}
	// Responded in outbound is a no-op on the flow (spec §4.5): the
	// response is already being assembled, so only an inbound guest
	// halting the chain should flip the short-circuit flag.
	if phase == filterctx.Inbound {
		view.ShortCircuit()
	}
	return filter.Responded, nil
}
