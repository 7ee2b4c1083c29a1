// Package wasmhost runs WebAssembly tool components inside a wazero
// runtime, enforcing memory and wall-clock limits and, for http-capable
// tools, mediating outbound requests through a guarded HTTP host.
//
// Grounded on the reference wasm_component.rs/wasm_tool_runner.rs host
// (fuel/epoch pre-emption, tagged-value result marshalling, SSRF-checked
// HTTP capability). wazero has no public fuel-metering API, so fuel is
// approximated by a step budget enforced via the epoch ticker described
// in limits.go rather than true per-instruction accounting.
package wasmhost

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValueKind tags the shape of a tool result value coming back from a
// component, matching the pure-tool/http-tool WIT `tool-value` variant.
type ValueKind string

const (
	KindText    ValueKind = "text"
	KindNumber  ValueKind = "number"
	KindInteger ValueKind = "integer"
	KindBoolean ValueKind = "boolean"
	KindJSON    ValueKind = "json"
)

// Value is the tagged union a component returns on success.
type Value struct {
	Kind    ValueKind
	Text    string
	Number  float64
	Integer int64
	Boolean bool
	JSON    string
}

// ToolError is the tagged union a component returns on failure.
type ToolError struct {
	Code    string
	Message string
}

func (e *ToolError) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

// Result is either a successful Value or a ToolError, mirroring the WIT
// `tool-result` variant.
type Result struct {
	Value *Value
	Err   *ToolError
}

// Marshal converts a component's tagged value into a standard JSON value,
// following the reference host's degrade-gracefully rules: NaN becomes
// null, and invalid embedded JSON degrades to a plain string rather than
// failing the whole call.
func Marshal(v Value) any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return nil
		}
		return v.Number
	case KindInteger:
		return v.Integer
	case KindBoolean:
		return v.Boolean
	case KindJSON:
		var decoded any
		if err := json.Unmarshal([]byte(v.JSON), &decoded); err != nil {
			return v.JSON
		}
		return decoded
	default:
		return nil
	}
}

// Decode turns a Result into a (JSON value, error) pair the tool-calling
// layer can use directly.
func Decode(toolName string, r Result) (any, error) {
	if r.Err != nil {
		return nil, fmt.Errorf("wasm tool %q failed: %w", toolName, r.Err)
	}
	if r.Value == nil {
		return nil, fmt.Errorf("wasm tool %q returned neither a value nor an error", toolName)
	}
	return Marshal(*r.Value), nil
}
