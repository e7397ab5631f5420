//go:build tinygo

// Command header-modifier is an illustrative Cardinal guest filter,
// compiled with TinyGo to `wasi` and loaded via internal/wasmhost. It
// exercises the get_header/set_header/get_req_var/set_req_var host
// imports and the handle/alloc guest ABI described by spec.md §4.5.
//
// Build: tinygo build -o header-modifier.wasm -target=wasi ./main.go
package main

import "unsafe"

var lastBody []byte

// alloc satisfies Cardinal's allocator requirement (alloc(size)->i32);
// the host writes the guest call's body into the returned region before
// invoking handle.
//
//export alloc
func alloc(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	buf := make([]byte, size)
	lastBody = buf
	return uint32(uintptr(unsafe.Pointer(&buf[0])))
}

// handle is called once per guest invocation. Cardinal does not pass a
// request struct through linear memory — guests observe and mutate
// request/response state entirely through the host imports below, so
// ptr/len here are unused beyond satisfying the required signature.
//
//export handle
func handle(ptr, length uint32) uint32 {
	if requestID, ok := getReqVar("request.id"); ok && requestID != "" {
		setHeader(0, "X-Seen-Request-Id", requestID)
	} else {
		setHeader(0, "X-Header-Modifier", "true")
	}

	if contentType, ok := getHeader("content-type"); ok {
		setReqVar("header_modifier.content_type", contentType)
	}

	return 1 // continue
}

func main() {}

//go:wasmimport env get_header
func hostGetHeader(namePtr, nameLen, outPtr, outCap uint32) int32

//go:wasmimport env get_query_param
func hostGetQueryParam(keyPtr, keyLen, outPtr, outCap uint32) int32

//go:wasmimport env set_header
func hostSetHeader(setType, namePtr, nameLen, valPtr, valLen uint32)

//go:wasmimport env set_status
func hostSetStatus(code uint32)

//go:wasmimport env get_req_var
func hostGetReqVar(keyPtr, keyLen, outPtr, outCap uint32) int32

//go:wasmimport env set_req_var
func hostSetReqVar(keyPtr, keyLen, valPtr, valLen uint32)

//go:wasmimport env abort
func hostAbort(code, msgPtr, msgLen uint32)

const outBufSize = 256

func getHeader(name string) (string, bool) {
	out := make([]byte, outBufSize)
	n := hostGetHeader(ptrOf(name), uint32(len(name)), ptrOfBytes(out), uint32(len(out)))
	if n < 0 {
		return "", false
	}
	return string(out[:n]), true
}

func getReqVar(key string) (string, bool) {
	out := make([]byte, outBufSize)
	n := hostGetReqVar(ptrOf(key), uint32(len(key)), ptrOfBytes(out), uint32(len(out)))
	if n < 0 {
		return "", false
	}
	return string(out[:n]), true
}

func setReqVar(key, value string) {
	hostSetReqVar(ptrOf(key), uint32(len(key)), ptrOf(value), uint32(len(value)))
}

func setHeader(setType uint32, name, value string) {
	hostSetHeader(setType, ptrOf(name), uint32(len(name)), ptrOf(value), uint32(len(value)))
}

func ptrOf(s string) uint32 {
	if len(s) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(unsafe.StringData(s))))
}

func ptrOfBytes(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(&b[0])))
}
