package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
)

// Run instantiates a fresh copy of module, copies body into its linear
// memory via the validated allocator, invokes handle, applies staged
// mutations (already applied directly to view as host imports run), and
// tears the instance down — spec.md §4.5 Run, steps 1-5.
//
// Returns true if the guest signalled "continue" (handle returned 1),
// false for "responded" (handle returned 0).
func (r *Runtime) Run(ctx context.Context, module *GuestModule, view *filterctx.SessionView, phase filterctx.Phase, body []byte) (cont bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if t, ok := rec.(hostTrap); ok {
				err = t.err
				return
			}
			panic(rec)
		}
	}()

	instance, instErr := r.rt.InstantiateModule(ctx, module.compiled, wazero.NewModuleConfig().WithName(""))
	if instErr != nil {
		return false, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.TrapInHostCall, Detail: fmt.Sprintf("instantiating guest: %v", instErr)}
	}
	defer instance.Close(ctx)

	ptr, length, allocErr := allocateAndWrite(ctx, instance, module.allocatorFn, body)
	if allocErr != nil {
		return false, allocErr
	}

	st := &execState{view: view, phase: phase}
	callCtx := withExecState(ctx, st)

	handleFn := instance.ExportedFunction(exportHandle)
	results, callErr := handleFn.Call(callCtx, uint64(ptr), uint64(length))
	if callErr != nil {
		return false, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.TrapInHostCall, Detail: callErr.Error()}
	}
	if len(results) != 1 {
		return false, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.BadHandleReturn, Detail: "handle returned no value"}
	}

	switch int32(results[0]) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.BadHandleReturn, Detail: fmt.Sprintf("handle returned %d", int32(results[0]))}
	}
}

// allocateAndWrite calls the guest's allocator to get a pointer able to
// hold len(body) bytes, then copies body into guest linear memory.
func allocateAndWrite(ctx context.Context, instance api.Module, allocatorFn string, body []byte) (uint32, uint32, error) {
	alloc := instance.ExportedFunction(allocatorFn)

	var args []uint64
	switch allocatorFn {
	case exportAllocAS:
		args = []uint64{uint64(len(body)), 0} // align_or_id=0: plain ArrayBuffer
	default: // exportAllocTiny
		args = []uint64{uint64(len(body))}
	}

	results, err := alloc.Call(ctx, args...)
	if err != nil {
		return 0, 0, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.MissingAllocator, Detail: err.Error()}
	}
	if len(results) != 1 {
		return 0, 0, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.MissingAllocator, Detail: "allocator returned no pointer"}
	}
	ptr := uint32(results[0])

	if len(body) > 0 {
		if !instance.Memory().Write(ptr, body) {
			return 0, 0, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.ResourceExceeded, Detail: "writing request body into guest memory"}
		}
	}
	return ptr, uint32(len(body)), nil
}
