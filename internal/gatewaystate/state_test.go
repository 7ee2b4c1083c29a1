package gatewaystate

import (
	"context"
	"testing"
	"time"

	"github.com/jsdzhang/moltis/pkg/protocol"
)

type fakeClient struct {
	id       string
	role     string
	scopes   []string
	channel  string
	events   []protocol.EventFrame
	requests []protocol.RequestFrame
	onReq    func(protocol.RequestFrame)
}

func (f *fakeClient) ID() string        { return f.id }
func (f *fakeClient) Role() string      { return f.role }
func (f *fakeClient) Scopes() []string  { return f.scopes }
func (f *fakeClient) Channel() string   { return f.channel }
func (f *fakeClient) SendEvent(e protocol.EventFrame) {
	f.events = append(f.events, e)
}
func (f *fakeClient) SendRequest(r protocol.RequestFrame) {
	f.requests = append(f.requests, r)
	if f.onReq != nil {
		f.onReq(r)
	}
}

func TestRegisterBroadcastUnregister(t *testing.T) {
	s := New()
	c1 := &fakeClient{id: "c1"}
	c2 := &fakeClient{id: "c2"}
	s.Register(c1)
	s.Register(c2)

	if s.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", s.ClientCount())
	}

	s.Broadcast(*protocol.NewEvent("tick", nil), nil)
	if len(c1.events) != 1 || len(c2.events) != 1 {
		t.Fatalf("expected both clients to receive the broadcast")
	}
	if c1.events[0].Seq == 0 {
		t.Fatal("expected non-zero sequence number on broadcast")
	}

	s.Unregister("c1")
	if s.ClientCount() != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", s.ClientCount())
	}
}

func TestBroadcastFilter(t *testing.T) {
	s := New()
	admin := &fakeClient{id: "admin", role: "operator"}
	node := &fakeClient{id: "node", role: "node"}
	s.Register(admin)
	s.Register(node)

	s.Broadcast(*protocol.NewEvent("presence", nil), func(c ClientConn) bool {
		return c.Role() == "operator"
	})
	if len(admin.events) != 1 {
		t.Fatal("admin should have received the filtered broadcast")
	}
	if len(node.events) != 0 {
		t.Fatal("node should not have received the filtered broadcast")
	}
}

func TestSeenRequestDedupes(t *testing.T) {
	s := New()
	if s.SeenRequest("req-1") {
		t.Fatal("first sighting should not be a duplicate")
	}
	if !s.SeenRequest("req-1") {
		t.Fatal("second sighting within TTL should be a duplicate")
	}
}

func TestSeenRequestTTLExpiry(t *testing.T) {
	s := New()
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }
	s.dedupeTTL = time.Millisecond

	s.SeenRequest("req-1")
	fakeNow = fakeNow.Add(2 * time.Millisecond)
	if s.SeenRequest("req-1") {
		t.Fatal("expected entry to have expired out of the dedupe window")
	}
}

func TestSendRequestRoundTrip(t *testing.T) {
	s := New()
	c := &fakeClient{id: "c1"}
	c.onReq = func(r protocol.RequestFrame) {
		go s.ResolvePending("c1", protocol.OKResponse(r.ID, "pong"))
	}
	s.Register(c)

	req := protocol.NewRequest("rpc-1", "ping", nil)
	resp, err := s.SendRequest(context.Background(), "c1", req, time.Second)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if !resp.OK || resp.Payload != "pong" {
		t.Fatalf("got %+v", resp)
	}
}

func TestSendRequestTimeout(t *testing.T) {
	s := New()
	c := &fakeClient{id: "c1"} // never resolves
	s.Register(c)

	req := protocol.NewRequest("rpc-2", "ping", nil)
	_, err := s.SendRequest(context.Background(), "c1", req, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestUnregisterCancelsPending(t *testing.T) {
	s := New()
	c := &fakeClient{id: "c1"}
	s.Register(c)

	done := make(chan error, 1)
	go func() {
		req := protocol.NewRequest("rpc-3", "ping", nil)
		_, err := s.SendRequest(context.Background(), "c1", req, time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Unregister("c1")

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after unregister cancelled the pending call")
		}
	case <-time.After(time.Second):
		t.Fatal("SendRequest did not return after Unregister")
	}
}
