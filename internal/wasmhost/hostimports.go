package wasmhost

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
)

// execStateKey is the context.Context key under which the current guest
// call's execution state is attached before invoking "handle"; the host
// import functions registered below read it back out.
type execStateKey struct{}

// execState is the per-call state host imports read and write. It wraps
// the request's SessionView and phase; req_vars, headers, and status all
// ultimately live on the RequestContext the SessionView was built from.
type execState struct {
	view  *filterctx.SessionView
	phase filterctx.Phase
}

// hostTrap is panicked by a host import to halt the current guest call
// immediately (spec.md §4.5 "Wrong-phase calls trap"). Run recovers it.
type hostTrap struct {
	err *cardinalerr.InvalidWasmModule
}

func trap(reason cardinalerr.WasmReason, detail string) {
	panic(hostTrap{err: &cardinalerr.InvalidWasmModule{Reason: reason, Detail: detail}})
}

func withExecState(ctx context.Context, st *execState) context.Context {
	return context.WithValue(ctx, execStateKey{}, st)
}

func execStateFrom(ctx context.Context) *execState {
	st, _ := ctx.Value(execStateKey{}).(*execState)
	if st == nil {
		trap(cardinalerr.TrapInHostCall, "host import called outside an active guest invocation")
	}
	return st
}

// buildHostModule registers Cardinal's "env" host import surface, the
// table in spec.md §4.5. Every string-valued getter follows the
// buffer-retry convention: return byte count written, -1 for not found,
// -n (n>1) if the caller's buffer was too small.
func buildHostModule(r *Runtime) wazero.HostModuleBuilder {
	b := r.rt.NewHostModuleBuilder(hostModuleName)

	b.NewFunctionBuilder().
		WithName("get_header").
		WithParameterNames("name_ptr", "name_len", "out_ptr", "out_cap").
		WithFunc(hostGetHeader).
		Export("get_header")

	b.NewFunctionBuilder().
		WithName("get_query_param").
		WithParameterNames("key_ptr", "key_len", "out_ptr", "out_cap").
		WithFunc(hostGetQueryParam).
		Export("get_query_param")

	b.NewFunctionBuilder().
		WithName("set_header").
		WithParameterNames("set_type", "name_ptr", "name_len", "val_ptr", "val_len").
		WithFunc(hostSetHeader).
		Export("set_header")

	b.NewFunctionBuilder().
		WithName("set_status").
		WithParameterNames("code").
		WithFunc(hostSetStatus).
		Export("set_status")

	b.NewFunctionBuilder().
		WithName("get_req_var").
		WithParameterNames("key_ptr", "key_len", "out_ptr", "out_cap").
		WithFunc(hostGetReqVar).
		Export("get_req_var")

	b.NewFunctionBuilder().
		WithName("set_req_var").
		WithParameterNames("key_ptr", "key_len", "val_ptr", "val_len").
		WithFunc(hostSetReqVar).
		Export("set_req_var")

	b.NewFunctionBuilder().
		WithName("abort").
		WithParameterNames("code", "msg_ptr", "msg_len").
		WithFunc(hostAbort).
		Export("abort")

	return b
}

func readString(mod api.Module, ptr, length uint32) (string, bool) {
	return readStringMem(mod.Memory(), ptr, length)
}

func readStringMem(mem api.Memory, ptr, length uint32) (string, bool) {
	if length == 0 {
		return "", true
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(data), true
}

// writeOut implements the buffer-retry convention for a found value.
func writeOut(mod api.Module, outPtr, outCap uint32, value string) int32 {
	return writeOutMem(mod.Memory(), outPtr, outCap, value)
}

func writeOutMem(mem api.Memory, outPtr, outCap uint32, value string) int32 {
	n := len(value)
	if n == 0 {
		return 0
	}
	if uint32(n) > outCap {
		return -int32(n)
	}
	if !mem.Write(outPtr, []byte(value)) {
		trap(cardinalerr.TrapInHostCall, "writing host import output to guest memory")
	}
	return int32(n)
}

func hostGetHeader(ctx context.Context, mod api.Module, namePtr, nameLen, outPtr, outCap uint32) int32 {
	st := execStateFrom(ctx)
	name, ok := readString(mod, namePtr, nameLen)
	if !ok {
		trap(cardinalerr.TrapInHostCall, "reading get_header name")
	}
	value, found := st.view.HeaderOK(name)
	if !found {
		return -1
	}
	return writeOut(mod, outPtr, outCap, value)
}

func hostGetQueryParam(ctx context.Context, mod api.Module, keyPtr, keyLen, outPtr, outCap uint32) int32 {
	st := execStateFrom(ctx)
	key, ok := readString(mod, keyPtr, keyLen)
	if !ok {
		trap(cardinalerr.TrapInHostCall, "reading get_query_param key")
	}
	value, found := st.view.QueryParamOK(key)
	if !found {
		return -1
	}
	return writeOut(mod, outPtr, outCap, value)
}

func hostSetHeader(ctx context.Context, mod api.Module, setType, namePtr, nameLen, valPtr, valLen uint32) {
	st := execStateFrom(ctx)
	name, ok1 := readString(mod, namePtr, nameLen)
	val, ok2 := readString(mod, valPtr, valLen)
	if !ok1 || !ok2 {
		trap(cardinalerr.TrapInHostCall, "reading set_header arguments")
	}

	switch setType {
	case 0: // request header
		st.view.SetRequestHeader(name, val)
	case 1: // response header, outbound only
		if st.phase != filterctx.Outbound {
			trap(cardinalerr.TrapInHostCall, "set_header(set_type=1) called from inbound phase")
		}
		st.view.SetResponseHeader(name, val)
	default:
		trap(cardinalerr.TrapInHostCall, "set_header: unknown set_type")
	}
}

func hostSetStatus(ctx context.Context, mod api.Module, code uint32) {
	st := execStateFrom(ctx)
	if st.phase != filterctx.Outbound {
		trap(cardinalerr.TrapInHostCall, "set_status called from inbound phase")
	}
	st.view.SetStatus(int(code))
}

func hostGetReqVar(ctx context.Context, mod api.Module, keyPtr, keyLen, outPtr, outCap uint32) int32 {
	st := execStateFrom(ctx)
	key, ok := readString(mod, keyPtr, keyLen)
	if !ok {
		trap(cardinalerr.TrapInHostCall, "reading get_req_var key")
	}
	value, found := st.view.ReqVar(key)
	if !found {
		return -1
	}
	return writeOut(mod, outPtr, outCap, value)
}

func hostSetReqVar(ctx context.Context, mod api.Module, keyPtr, keyLen, valPtr, valLen uint32) {
	st := execStateFrom(ctx)
	key, ok1 := readString(mod, keyPtr, keyLen)
	val, ok2 := readString(mod, valPtr, valLen)
	if !ok1 || !ok2 {
		trap(cardinalerr.TrapInHostCall, "reading set_req_var arguments")
	}
	st.view.SetReqVar(key, val)
}

func hostAbort(ctx context.Context, mod api.Module, code, msgPtr, msgLen uint32) {
	msg, ok := readString(mod, msgPtr, msgLen)
	if !ok {
		msg = "<unreadable guest abort message>"
	}
	panic(hostTrap{err: &cardinalerr.InvalidWasmModule{
		Reason:   cardinalerr.GuestAbort,
		Detail:   strings.TrimSpace(msg),
		AbortErr: int32(code),
	}})
}
