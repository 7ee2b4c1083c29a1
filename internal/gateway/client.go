package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jsdzhang/moltis/pkg/protocol"
)

// Client wraps one WebSocket connection and implements
// gatewaystate.ClientConn so the dispatch/state layer can address it
// without depending on gorilla/websocket directly.
type Client struct {
	id      string
	conn    *websocket.Conn
	role    string
	scopes  []string
	channel string

	protocolVersion uint32

	writeMu sync.Mutex
	send    chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection in a Client with a fresh id.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Role() string     { return c.role }
func (c *Client) Scopes() []string { return c.scopes }
func (c *Client) Channel() string  { return c.channel }

// SetIdentity records the negotiated role/scopes/channel after handshake.
func (c *Client) SetIdentity(role string, scopes []string, channel string) {
	c.role, c.scopes, c.channel = role, scopes, channel
}

func (c *Client) ProtocolVersion() uint32      { return c.protocolVersion }
func (c *Client) SetProtocolVersion(v uint32) { c.protocolVersion = v }

// SendEvent enqueues an event frame for delivery. If the client's outbound
// buffer is full, the event is dropped for this client only — a slow
// consumer never blocks or disconnects other clients (§5 slow-consumer
// semantics).
func (c *Client) SendEvent(e protocol.EventFrame) {
	c.enqueue(e)
}

// SendRequest enqueues a server→client RPC request frame.
func (c *Client) SendRequest(r protocol.RequestFrame) {
	c.enqueue(r)
}

// SendResponse enqueues a response frame (used when the client itself sent
// a v4 request and we're answering it).
func (c *Client) SendResponse(r protocol.ResponseFrame) {
	c.enqueue(r)
}

func (c *Client) enqueue(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal outbound frame failed", "error", err, "client", c.id)
		return
	}
	select {
	case c.send <- b:
	default:
		slog.Warn("dropping frame for slow consumer", "client", c.id)
	}
}

// WritePump drains the send channel to the socket until Close or ctx done.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(protocol.TickIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case msg := <-c.send:
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ReadFrame blocks for the next text frame from the client.
func (c *Client) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close terminates the connection, safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
