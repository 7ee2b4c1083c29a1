package approval

import (
	"context"
	"testing"
	"time"
)

func TestRequestWaitResolve(t *testing.T) {
	m := NewManager()
	if err := m.Request("req-1"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !m.Pending("req-1") {
		t.Fatal("expected req-1 to be pending")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if !m.Resolve("req-1", Decision{Approved: true, Reason: "ok"}) {
			t.Error("Resolve returned false for pending request")
		}
	}()

	d, err := m.Wait(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !d.Approved || d.Reason != "ok" {
		t.Fatalf("got %+v", d)
	}
	if m.Pending("req-1") {
		t.Fatal("request should be cleared after resolution")
	}
}

func TestRequestDuplicateRejected(t *testing.T) {
	m := NewManager()
	if err := m.Request("dup"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := m.Request("dup"); err == nil {
		t.Fatal("expected error on duplicate request id")
	}
}

func TestWaitTimeoutClearsPending(t *testing.T) {
	m := NewManager()
	_ = m.Request("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := m.Wait(ctx, "slow"); err == nil {
		t.Fatal("expected timeout error")
	}
	if m.Pending("slow") {
		t.Fatal("expected pending entry to be cleared after timeout")
	}
	if m.Resolve("slow", Decision{Approved: true}) {
		t.Fatal("resolve after timeout should be a no-op")
	}
}

func TestWaitUnknownRequest(t *testing.T) {
	m := NewManager()
	if _, err := m.Wait(context.Background(), "nope"); err == nil {
		t.Fatal("expected error waiting on unknown id")
	}
}
