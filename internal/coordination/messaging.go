package coordination

import "sync"

// SessionMessage is one entry in an inter-session conversation, e.g. a
// parent agent sending a clarifying answer to a sub-agent it spawned, or
// two peer sessions coordinating handoff.
type SessionMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
}

// MessageLog keeps a simple in-memory history of inter-session messages,
// keyed by the receiving session id, for the sessions.messages.* RPC family.
type MessageLog struct {
	mu   sync.Mutex
	byTo map[string][]SessionMessage
}

// NewMessageLog builds an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{byTo: make(map[string][]SessionMessage)}
}

// Send appends a message to the recipient's history.
func (l *MessageLog) Send(msg SessionMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byTo[msg.To] = append(l.byTo[msg.To], msg)
}

// History returns all messages ever delivered to sessionID, oldest first.
func (l *MessageLog) History(sessionID string) []SessionMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SessionMessage, len(l.byTo[sessionID]))
	copy(out, l.byTo[sessionID])
	return out
}
