package gatewaydispatch

import (
	"context"
	"testing"

	"github.com/jsdzhang/moltis/internal/gatewaystate"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func TestDispatchUnknownMethod(t *testing.T) {
	d := New(gatewaystate.New())
	resp := d.Dispatch(context.Background(), ClientIdentity{ID: "c1"}, protocol.NewRequest("1", "nope", nil))
	if resp.OK || resp.Error == nil || resp.Error.Code != protocol.ErrUnknownMethod {
		t.Fatalf("got %+v", resp)
	}
}

func TestDispatchScopeEnforced(t *testing.T) {
	d := New(gatewaystate.New())
	d.Register("admin.thing", protocol.ScopeAdmin, func(_ context.Context, _ any) (any, *protocol.ErrorShape) {
		return "ok", nil
	})

	resp := d.Dispatch(context.Background(), ClientIdentity{ID: "c1", Scopes: []string{protocol.ScopeRead}}, protocol.NewRequest("1", "admin.thing", nil))
	if resp.OK || resp.Error.Code != protocol.ErrForbidden {
		t.Fatalf("expected forbidden, got %+v", resp)
	}

	resp = d.Dispatch(context.Background(), ClientIdentity{ID: "c1", Scopes: []string{protocol.ScopeAdmin}}, protocol.NewRequest("2", "admin.thing", nil))
	if !resp.OK || resp.Payload != "ok" {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestDispatchDedupesRequestID(t *testing.T) {
	d := New(gatewaystate.New())
	calls := 0
	d.Register("count", "", func(_ context.Context, _ any) (any, *protocol.ErrorShape) {
		calls++
		return calls, nil
	})

	req := protocol.NewRequest("dup-1", "count", nil)
	r1 := d.Dispatch(context.Background(), ClientIdentity{ID: "c1"}, req)
	r2 := d.Dispatch(context.Background(), ClientIdentity{ID: "c1"}, req)

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if !r1.OK || !r2.OK {
		t.Fatalf("expected both responses OK: %+v %+v", r1, r2)
	}
}

func TestNegotiateVersion(t *testing.T) {
	v, err := NegotiateVersion(3, 4)
	if err != nil || v != 4 {
		t.Fatalf("got %d, %v", v, err)
	}
	v, err = NegotiateVersion(3, 3)
	if err != nil || v != 3 {
		t.Fatalf("got %d, %v", v, err)
	}
	if _, err := NegotiateVersion(1, 2); err == nil {
		t.Fatal("expected no-overlap error")
	}
}

func TestParseConnectParamsV3Fallback(t *testing.T) {
	raw := []byte(`{"minProtocol":3,"maxProtocol":3,"client":{"name":"cli"},"caps":["a"]}`)
	params, version, err := ParseConnectParams(raw)
	if err != nil {
		t.Fatalf("ParseConnectParams: %v", err)
	}
	if version != 3 {
		t.Fatalf("expected v3, got %d", version)
	}
	if params.Protocol.Min != 3 || params.Protocol.Max != 3 {
		t.Fatalf("got %+v", params.Protocol)
	}
}

func TestParseConnectParamsV4(t *testing.T) {
	raw := []byte(`{"protocol":{"min":3,"max":4},"client":{"name":"cli"}}`)
	params, version, err := ParseConnectParams(raw)
	if err != nil {
		t.Fatalf("ParseConnectParams: %v", err)
	}
	if version != 4 {
		t.Fatalf("expected v4, got %d", version)
	}
	if params.Protocol.Max != 4 {
		t.Fatalf("got %+v", params.Protocol)
	}
}
