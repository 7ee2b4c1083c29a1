// Package gateway implements the WebSocket/HTTP front door: connection
// upgrade, v3/v4 handshake negotiation, and wiring the dispatch layer to
// a message bus for event fan-out. Adapted from the teacher's gateway
// server (same Start/BuildMux/handleWebSocket/checkOrigin/BroadcastEvent
// shape); the managed-mode CRUD handlers (agents/skills/traces/MCP/custom
// tools/channel instances/providers/delegations/builtin tools) and the
// internal/permissions policy engine were not present anywhere in the
// retrieved teacher tree and are out of this gateway's core scope, so
// Server no longer carries those fields — see DESIGN.md.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/internal/gatewaystate"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

// Server is the main gateway server handling WebSocket and HTTP connections.
type Server struct {
	cfg      *config.Config
	eventPub bus.EventPublisher

	state      *gatewaystate.State
	dispatcher *gatewaydispatch.Dispatcher

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, eventPub bus.EventPublisher) *Server {
	s := &Server{
		cfg:      cfg,
		eventPub: eventPub,
		state:    gatewaystate.New(),
	}
	s.dispatcher = gatewaydispatch.New(s.state)

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// rate_limit_rpm > 0  → enabled at that RPM
	// rate_limit_rpm == 0 → disabled (default, backward compat)
	// rate_limit_rpm < 0  → disabled explicitly
	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, 5)

	return s
}

// Dispatcher returns the method/event router for registering handlers.
func (s *Server) Dispatcher() *gatewaydispatch.Dispatcher { return s.dispatcher }

// RateLimiter returns the server's rate limiter for use by method handlers.
func (s *Server) RateLimiter() *RateLimiter { return s.rateLimiter }

// checkOrigin validates WebSocket connection origin against the allowed
// origins whitelist. No config = allow all (dev mode). Empty Origin header
// (non-browser clients like CLI/SDK) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.mux = mux
	return mux
}

// Start begins listening for WebSocket and HTTP connections.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebSocket upgrades HTTP to WebSocket, runs the handshake, then the
// client's read/dispatch loop until disconnect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go client.WritePump(ctx)

	if err := s.handshake(ctx, client); err != nil {
		slog.Warn("handshake failed", "error", err)
		client.Close()
		return
	}

	s.registerClient(client)
	defer s.unregisterClient(client)
	defer client.Close()

	s.readLoop(ctx, client)
}

func (s *Server) handshake(ctx context.Context, client *Client) error {
	raw, err := client.ReadFrame()
	if err != nil {
		return fmt.Errorf("read connect frame: %w", err)
	}
	var req protocol.RequestFrame
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode connect frame: %w", err)
	}
	if req.Method != protocol.MethodConnect {
		return fmt.Errorf("first frame must be %q, got %q", protocol.MethodConnect, req.Method)
	}

	paramsRaw, _ := json.Marshal(req.Params)
	params, version, err := gatewaydispatch.ParseConnectParams(paramsRaw)
	if err != nil {
		return err
	}
	negotiated, err := gatewaydispatch.NegotiateVersion(params.Protocol.Min, params.Protocol.Max)
	if err != nil {
		return err
	}
	_ = version

	role := params.Role
	if role == "" {
		role = protocol.RoleOperator
	}
	client.SetIdentity(role, params.Scopes, "")
	client.SetProtocolVersion(negotiated)

	hello := s.dispatcher.BuildHelloOk(client.ID(), negotiated, nil)
	client.SendResponse(protocol.OKResponse(req.ID, hello))
	return nil
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		raw, err := client.ReadFrame()
		if err != nil {
			return
		}

		if !s.rateLimiter.Allow(client.ID()) {
			continue
		}

		var req protocol.RequestFrame
		if err := json.Unmarshal(raw, &req); err != nil {
			client.SendResponse(protocol.ErrResponse("", protocol.NewError(protocol.ErrProtocolError, "malformed frame")))
			continue
		}

		switch req.Type {
		case protocol.FrameResponse:
			var resp protocol.ResponseFrame
			if err := json.Unmarshal(raw, &resp); err == nil {
				s.state.ResolvePending(client.ID(), resp)
			}
		default:
			who := gatewaydispatch.ClientIdentity{ID: client.ID(), Role: client.Role(), Scopes: client.Scopes()}
			resp := s.dispatcher.Dispatch(ctx, who, req)
			client.SendResponse(resp)
		}
	}
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d,"clients":%d}`, protocol.ProtocolVersion, s.state.ClientCount())
}

// BroadcastEvent sends an event to every connected client whose scope
// allows it to see it (nil filter = everyone).
func (s *Server) BroadcastEvent(event protocol.EventFrame) {
	s.state.Broadcast(event, nil)
}

func (s *Server) registerClient(c *Client) {
	s.state.Register(c)

	s.eventPub.Subscribe(c.ID(), func(event bus.Event) {
		if strings.HasPrefix(event.Name, "cache.") {
			return // internal event, not forwarded to WS clients
		}
		c.SendEvent(*protocol.NewEvent(event.Name, event.Payload))
	})

	slog.Info("client connected", "id", c.ID())
}

func (s *Server) unregisterClient(c *Client) {
	s.state.Unregister(c.ID())
	s.eventPub.Unsubscribe(c.ID())
	s.rateLimiter.Forget(c.ID())
	slog.Info("client disconnected", "id", c.ID())
}

// StartTestServer creates a listener on :0 (random port) and returns the
// actual address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}

	return addr, start
}
