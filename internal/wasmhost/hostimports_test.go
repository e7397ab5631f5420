package wasmhost

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
)

// memoryOnlyModule is a hand-assembled, valid WASM module exporting
// nothing but a one-page linear memory ("memory", index 0) — just enough
// for wazero to hand back a real api.Module whose Memory() can be read
// from and written to, without needing a compiler to produce it.
var memoryOnlyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min=1 page
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory"
}

// newTestModule instantiates memoryOnlyModule against a fresh wazero
// runtime, giving host-import tests a real api.Module/api.Memory pair
// without a guest compiler or a prebuilt .wasm fixture.
func newTestModule(t *testing.T) (api.Module, func()) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)

	compiled, err := rt.CompileModule(ctx, memoryOnlyModule)
	require.NoError(t, err)

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	require.NoError(t, err)

	return mod, func() { _ = rt.Close(ctx) }
}

// newRequestContext builds a real filterctx.RequestContext carrying
// headers and query params fixed enough to exercise both presence and
// absence through the host imports under test.
func newRequestContext(phase filterctx.Phase) *filterctx.RequestContext {
	req := httptest.NewRequest("GET", "http://example.com/posts?id=7&empty=", nil)
	req.Header.Set("X-Trace", "abc")
	req.Header.Set("X-Empty", "")
	rc := filterctx.New(req, nil)
	if phase == filterctx.Outbound {
		rc.BeginOutbound(200, nil)
	}
	return rc
}

func mustRecoverTrap(t *testing.T) *cardinalerr.InvalidWasmModule {
	t.Helper()
	rec := recover()
	if rec == nil {
		t.Fatal("expected a host trap panic, got none")
	}
	trapped, ok := rec.(hostTrap)
	if !ok {
		t.Fatalf("expected hostTrap, got %T: %v", rec, rec)
	}
	return trapped.err
}

// --- invariant 3: inbound calls to outbound-only mutators trap, with no
// mutation applied (spec.md §8 invariant 3) ---

func TestHostSetStatus_TrapsInInboundPhase(t *testing.T) {
	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	defer func() {
		invalid := mustRecoverTrap(t)
		require.Equal(t, cardinalerr.TrapInHostCall, invalid.Reason)
		require.Nil(t, rc.PendingStatus, "set_status must not mutate state when it traps")
	}()

	hostSetStatus(callCtx, nil, 500)
	t.Fatal("hostSetStatus did not trap")
}

func TestHostSetStatus_SucceedsInOutboundPhase(t *testing.T) {
	rc := newRequestContext(filterctx.Outbound)
	view := filterctx.NewSessionView(rc, filterctx.Outbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Outbound})

	hostSetStatus(callCtx, nil, 500)

	require.NotNil(t, rc.PendingStatus)
	require.Equal(t, 500, *rc.PendingStatus)
}

func TestHostSetHeader_ResponseHeaderTrapsInInboundPhase(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	name, val := "X-Reply", "late"
	require.True(t, mod.Memory().Write(0, []byte(name)))
	require.True(t, mod.Memory().Write(100, []byte(val)))

	defer func() {
		invalid := mustRecoverTrap(t)
		require.Equal(t, cardinalerr.TrapInHostCall, invalid.Reason)
		require.Empty(t, rc.ResponseHeaders.Get(name), "set_header(set_type=1) must not mutate state when it traps")
	}()

	hostSetHeader(callCtx, mod, 1, 0, uint32(len(name)), 100, uint32(len(val)))
	t.Fatal("hostSetHeader(set_type=1) did not trap in inbound phase")
}

func TestHostSetHeader_RequestHeaderAllowedInInboundPhase(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	name, val := "X-Added", "early"
	require.True(t, mod.Memory().Write(0, []byte(name)))
	require.True(t, mod.Memory().Write(100, []byte(val)))

	hostSetHeader(callCtx, mod, 0, 0, uint32(len(name)), 100, uint32(len(val)))

	require.Equal(t, val, rc.PendingRequestHeaders.Get(name))
}

// --- buffer-retry convention: byte count on fit, -1 not found, -n too small ---

func TestWriteOutMem_ReturnsByteCountOnFit(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	n := writeOutMem(mod.Memory(), 0, 64, "hello")
	require.Equal(t, int32(5), n)

	data, ok := mod.Memory().Read(0, 5)
	require.True(t, ok)
	require.Equal(t, "hello", string(data))
}

func TestWriteOutMem_ReturnsNegativeRequiredSizeWhenBufferTooSmall(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	n := writeOutMem(mod.Memory(), 0, 2, "hello")
	require.Equal(t, int32(-5), n)
}

func TestWriteOutMem_EmptyValueReturnsZero(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	n := writeOutMem(mod.Memory(), 0, 64, "")
	require.Equal(t, int32(0), n)
}

func TestHostGetHeader_PresentHeaderWritesValue(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	name := "X-Trace"
	require.True(t, mod.Memory().Write(0, []byte(name)))

	n := hostGetHeader(callCtx, mod, 0, uint32(len(name)), 100, 64)
	require.Equal(t, int32(3), n)

	data, ok := mod.Memory().Read(100, 3)
	require.True(t, ok)
	require.Equal(t, "abc", string(data))
}

func TestHostGetHeader_AbsentHeaderReturnsNotFound(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	name := "X-Missing"
	require.True(t, mod.Memory().Write(0, []byte(name)))

	n := hostGetHeader(callCtx, mod, 0, uint32(len(name)), 100, 64)
	require.Equal(t, int32(-1), n)
}

func TestHostGetHeader_PresentButEmptyHeaderIsNotNotFound(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	name := "X-Empty"
	require.True(t, mod.Memory().Write(0, []byte(name)))

	n := hostGetHeader(callCtx, mod, 0, uint32(len(name)), 100, 64)
	require.Equal(t, int32(0), n, "a present-but-empty header must not be reported as absent (-1)")
}

func TestHostGetQueryParam_PresentButEmptyIsNotNotFound(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	key := "empty"
	require.True(t, mod.Memory().Write(0, []byte(key)))

	n := hostGetQueryParam(callCtx, mod, 0, uint32(len(key)), 100, 64)
	require.Equal(t, int32(0), n, "a present-but-empty query param must not be reported as absent (-1)")
}

func TestHostGetQueryParam_AbsentKeyReturnsNotFound(t *testing.T) {
	mod, closeFn := newTestModule(t)
	defer closeFn()

	rc := newRequestContext(filterctx.Inbound)
	view := filterctx.NewSessionView(rc, filterctx.Inbound)
	callCtx := withExecState(context.Background(), &execState{view: view, phase: filterctx.Inbound})

	key := "missing"
	require.True(t, mod.Memory().Write(0, []byte(key)))

	n := hostGetQueryParam(callCtx, mod, 0, uint32(len(key)), 100, 64)
	require.Equal(t, int32(-1), n)
}

func TestExecStateFrom_TrapsWithoutActiveCall(t *testing.T) {
	defer func() {
		invalid := mustRecoverTrap(t)
		require.Equal(t, cardinalerr.TrapInHostCall, invalid.Reason)
	}()

	execStateFrom(context.Background())
	t.Fatal("execStateFrom did not trap outside an active guest call")
}
