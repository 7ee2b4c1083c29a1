package gatewaystate

import (
	"context"
	"fmt"
	"time"

	"github.com/jsdzhang/moltis/pkg/protocol"
)

// SendRequest issues a server→client RPC call and blocks until the client's
// response frame arrives, ctx is cancelled, or timeout elapses. The request
// id is namespaced "<clientID>:<rpcID>" in the pending table so a client
// disconnect (Unregister) can cancel exactly its own outstanding calls.
func (s *State) SendRequest(ctx context.Context, clientID string, req protocol.RequestFrame, timeout time.Duration) (protocol.ResponseFrame, error) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	if !ok {
		s.mu.Unlock()
		return protocol.ResponseFrame{}, fmt.Errorf("client %q not connected", clientID)
	}
	key := clientID + ":" + req.ID
	p := &pendingRPC{resultCh: make(chan protocol.ResponseFrame, 1), created: s.now()}
	s.pending[key] = p
	s.mu.Unlock()

	client.SendRequest(req)

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case resp, ok := <-p.resultCh:
		if !ok {
			return protocol.ResponseFrame{}, fmt.Errorf("client %q disconnected before responding", clientID)
		}
		return resp, nil
	case <-waitCtx.Done():
		s.mu.Lock()
		delete(s.pending, key)
		s.mu.Unlock()
		return protocol.ResponseFrame{}, waitCtx.Err()
	}
}

// ResolvePending delivers a client's response frame to the goroutine
// blocked in SendRequest for it. Returns false if nothing was pending
// (already timed out, or the id was never requested).
func (s *State) ResolvePending(clientID string, resp protocol.ResponseFrame) bool {
	key := clientID + ":" + resp.ID
	s.mu.Lock()
	p, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	p.resultCh <- resp
	return true
}
