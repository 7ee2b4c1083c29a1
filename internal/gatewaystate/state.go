// Package gatewaystate holds the v4 gateway's connection-scoped state: the
// connected-client table, the inbound-frame dedupe cache, and the pending
// server→client RPC table — all behind one RWMutex (OTP pairing state is
// not kept here), mirroring internal/gateway.Server's clients map + sync.RWMutex
// but generalized to the extra v4 tables the distilled spec calls for.
package gatewaystate

import (
	"sync"
	"time"

	"github.com/jsdzhang/moltis/pkg/protocol"
)

// ClientConn is whatever the dispatch layer needs to push frames to one
// connected client; gatewaydispatch supplies the concrete implementation so
// this package stays free of a transport dependency.
type ClientConn interface {
	ID() string
	Role() string
	Scopes() []string
	Channel() string
	SendEvent(protocol.EventFrame)
	SendRequest(protocol.RequestFrame)
}

type pendingRPC struct {
	resultCh chan protocol.ResponseFrame
	created  time.Time
}

type dedupeEntry struct {
	seenAt time.Time
}

// State is the gateway's single RW-locked bag of connection state.
type State struct {
	mu sync.RWMutex

	clients map[string]ClientConn
	seq     uint64

	dedupe     map[string]dedupeEntry
	dedupeTTL  time.Duration
	dedupeMax  int

	pending map[string]*pendingRPC

	now func() time.Time
}

// New builds an empty State using the wire defaults from pkg/protocol.
func New() *State {
	return &State{
		clients:   make(map[string]ClientConn),
		dedupe:    make(map[string]dedupeEntry),
		dedupeTTL: time.Duration(protocol.DedupeTTLMS) * time.Millisecond,
		dedupeMax: protocol.DedupeMaxEntries,
		pending:   make(map[string]*pendingRPC),
		now:       time.Now,
	}
}

// --- connected clients ---

// Register adds a connected client.
func (s *State) Register(c ClientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID()] = c
}

// Unregister removes a connected client and drops any pending RPCs destined
// for it (a disconnect cancels outstanding server→client calls outright).
func (s *State) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
	for key, p := range s.pending {
		if hasPrefix(key, id+":") {
			close(p.resultCh)
			delete(s.pending, key)
		}
	}
}

// Get returns the client by id, if connected.
func (s *State) Get(id string) (ClientConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// Broadcast delivers an event to every connected client whose subscription
// predicate accepts it, stamping a monotonically increasing sequence number
// first so clients can detect gaps. filter may be nil to mean "everyone".
func (s *State) Broadcast(event protocol.EventFrame, filter func(ClientConn) bool) {
	s.mu.Lock()
	s.seq++
	event.Seq = s.seq
	clients := make([]ClientConn, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if filter != nil && !filter(c) {
			continue
		}
		c.SendEvent(event)
	}
}

// ClientCount reports the number of currently connected clients.
func (s *State) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
