// Package wasmhost implements the WASM Runtime: loading and validating
// untrusted guest modules, and running them against the strict host
// import surface of spec.md §4.5, with a fresh guest instance per
// invocation and phase-trap enforcement.
package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
)

const (
	hostModuleName  = "env"
	exportHandle    = "handle"
	exportAllocAS   = "__new"
	exportAllocTiny = "alloc"
	exportMemory    = "memory"
)

// Runtime owns one process-wide wazero.Runtime and the compiled guest
// modules loaded from it. A Runtime is safe for concurrent use: compiled
// modules are immutable and each Run call instantiates a fresh, isolated
// guest instance.
type Runtime struct {
	rt  wazero.Runtime
	ctx context.Context

	maxMemoryPages uint32 // resource limit, spec.md §5 "fixed maximum linear-memory size"
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithMaxMemoryPages bounds guest linear memory (64KiB pages) through the
// shared wazero runtime's memory limit. Load reports a module that fails
// to compile under the limit like any other compile failure, as
// InvalidWasmModule{MissingHandle}; it does not use ResourceExceeded.
func WithMaxMemoryPages(pages uint32) Option {
	return func(r *Runtime) { r.maxMemoryPages = pages }
}

// NewRuntime builds a shared wazero runtime with WASI preview1 and
// Cardinal's host import module instantiated once.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		ctx:            ctx,
		maxMemoryPages: 256, // 16MiB default ceiling
	}
	for _, o := range opts {
		o(rt)
	}
	rt.rt = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(rt.maxMemoryPages))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt.rt); err != nil {
		return nil, fmt.Errorf("wasmhost: instantiating WASI: %w", err)
	}
	if _, err := buildHostModule(rt).Instantiate(ctx); err != nil {
		return nil, fmt.Errorf("wasmhost: instantiating host module: %w", err)
	}
	return rt, nil
}

// Close releases the underlying wazero runtime and every compiled module.
func (r *Runtime) Close(ctx context.Context) error {
	return r.rt.Close(ctx)
}

// GuestModule is a compiled, validated guest module ready to be Run.
// Immutable and shared read-only across concurrent requests; Run creates
// a fresh instance per call (spec.md §4.5 Run step 1).
type GuestModule struct {
	name         string
	compiled     wazero.CompiledModule
	allocatorFn  string // exportAllocAS or exportAllocTiny
}

// Load compiles bytes and validates the guest export surface required by
// spec.md §3/§4.5: handle(i32,i32)->i32, an allocator, and exported
// linear memory. Any missing piece is a fatal InvalidWasmModule error.
func (r *Runtime) Load(name string, bytes []byte) (*GuestModule, error) {
	compiled, err := r.rt.CompileModule(r.ctx, bytes)
	if err != nil {
		return nil, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.MissingHandle, Detail: err.Error()}
	}

	funcs := compiled.ExportedFunctions()

	handleDef, ok := funcs[exportHandle]
	if !ok || !isSignature(handleDef, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}) {
		return nil, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.MissingHandle, Detail: fmt.Sprintf("%q must export handle(i32,i32)->i32", name)}
	}

	allocatorFn := ""
	if def, ok := funcs[exportAllocAS]; ok && isSignature(def, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}) {
		allocatorFn = exportAllocAS
	} else if def, ok := funcs[exportAllocTiny]; ok && isSignature(def, []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}) {
		allocatorFn = exportAllocTiny
	}
	if allocatorFn == "" {
		return nil, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.MissingAllocator, Detail: fmt.Sprintf("%q must export __new(i32,i32)->i32 or alloc(i32)->i32", name)}
	}

	if _, ok := compiled.ExportedMemories()[exportMemory]; !ok {
		return nil, &cardinalerr.InvalidWasmModule{Reason: cardinalerr.MissingMemory, Detail: fmt.Sprintf("%q must export linear memory", name)}
	}

	return &GuestModule{name: name, compiled: compiled, allocatorFn: allocatorFn}, nil
}

func isSignature(def api.FunctionDefinition, params, results []api.ValueType) bool {
	return valueTypesEqual(def.ParamTypes(), params) && valueTypesEqual(def.ResultTypes(), results)
}

func valueTypesEqual(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
