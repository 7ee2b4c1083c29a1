package wasmhost

import (
	"math"
	"testing"
)

func TestMarshalText(t *testing.T) {
	if got := Marshal(Value{Kind: KindText, Text: "hi"}); got != "hi" {
		t.Fatalf("got %v", got)
	}
}

func TestMarshalNaNBecomesNull(t *testing.T) {
	if got := Marshal(Value{Kind: KindNumber, Number: math.NaN()}); got != nil {
		t.Fatalf("expected nil for NaN, got %v", got)
	}
}

func TestMarshalValidJSON(t *testing.T) {
	got := Marshal(Value{Kind: KindJSON, JSON: `{"a":1}`})
	m, ok := got.(map[string]any)
	if !ok || m["a"] != float64(1) {
		t.Fatalf("got %v", got)
	}
}

func TestMarshalInvalidJSONDegradesToString(t *testing.T) {
	got := Marshal(Value{Kind: KindJSON, JSON: "{bad"})
	if got != "{bad" {
		t.Fatalf("expected degraded string, got %v", got)
	}
}

func TestDecodeErr(t *testing.T) {
	_, err := Decode("mytool", Result{Err: &ToolError{Code: "boom", Message: "bad"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeOk(t *testing.T) {
	v, err := Decode("mytool", Result{Value: &Value{Kind: KindInteger, Integer: 7}})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v != int64(7) {
		t.Fatalf("got %v", v)
	}
}
