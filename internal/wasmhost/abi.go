package wasmhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Guest ABI: every component exports `alloc(size u32) -> ptr u32` plus
// name/description/parameters-schema/execute functions that accept and
// return a packed (ptr<<32|len) u64 pointing at a UTF-8 buffer in the
// module's own linear memory. execute's buffer is a JSON-encoded
// wireResult; metadata calls return a JSON string directly.
//
// wazero has no WIT component-model bindgen, so this replaces the
// reference host's wasmtime::component bindings with an equivalent
// hand-rolled wire format carrying the same information.
type wireValue struct {
	Kind    ValueKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Number  float64   `json:"number,omitempty"`
	Integer int64     `json:"integer,omitempty"`
	Boolean bool      `json:"boolean,omitempty"`
	JSON    string    `json:"json,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireResult struct {
	Ok  *wireValue `json:"ok,omitempty"`
	Err *wireError `json:"err,omitempty"`
}

func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpackPtrLen(v uint64) (uint32, uint32) {
	return uint32(v >> 32), uint32(v)
}

func readGuestString(mod api.Module, packed uint64) (string, error) {
	ptr, length := unpackPtrLen(packed)
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", fmt.Errorf("wasmhost: guest returned out-of-bounds buffer (ptr=%d len=%d)", ptr, length)
	}
	return string(buf), nil
}

// writeGuestString allocates length bytes in the guest via its exported
// "alloc" function and copies data into it, returning the pointer.
func writeGuestString(ctx context.Context, mod api.Module, alloc api.Function, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	results, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("wasmhost: guest alloc failed: %w", err)
	}
	ptr := uint32(results[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("wasmhost: failed writing %d bytes at guest ptr %d", len(data), ptr)
	}
	return ptr, nil
}

func decodeWireResult(raw string) Result {
	var w wireResult
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Result{Err: &ToolError{Code: "invalid_result", Message: "component returned malformed result JSON: " + err.Error()}}
	}
	if w.Err != nil {
		return Result{Err: &ToolError{Code: w.Err.Code, Message: w.Err.Message}}
	}
	if w.Ok == nil {
		return Result{Err: &ToolError{Code: "empty_result", Message: "component returned neither ok nor err"}}
	}
	return Result{Value: &Value{
		Kind:    w.Ok.Kind,
		Text:    w.Ok.Text,
		Number:  w.Ok.Number,
		Integer: w.Ok.Integer,
		Boolean: w.Ok.Boolean,
		JSON:    w.Ok.JSON,
	}}
}
