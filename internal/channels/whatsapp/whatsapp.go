package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/store"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

// Channel connects to a WhatsApp bridge via WebSocket.
// The bridge (e.g. whatsapp-web.js based) handles the actual WhatsApp
// protocol; this channel just sends/receives JSON messages over WS.
type Channel struct {
	*channels.BaseChannel
	conn            *websocket.Conn
	config          config.WhatsAppConfig
	mu              sync.Mutex
	connected       bool
	ctx             context.Context
	cancel          context.CancelFunc
	pairingService  store.PairingStore
	otpApproved     sync.Map // senderID string → true (runtime allowlist from OTP self-approval)
	policy          access.Policy
	otp             *access.OTPManager
	otpSelfApproval bool
}

// New creates a new WhatsApp channel from config.
// otpMgr is the gateway-wide self-approval manager (§4.2), shared across
// channel plugins so an operator can revoke a pending challenge regardless
// of which plugin issued it.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus, pairingSvc store.PairingStore, otpMgr *access.OTPManager) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}

	base := channels.NewBaseChannel("whatsapp", msgBus, cfg.AllowFrom)

	otpSelfApproval := true
	if cfg.OtpSelfApproval != nil {
		otpSelfApproval = *cfg.OtpSelfApproval
	}

	return &Channel{
		BaseChannel:    base,
		config:         cfg,
		pairingService: pairingSvc,
		policy: access.Policy{
			DM:        access.DMPolicy(cfg.DMPolicy),
			Group:     access.GroupPolicy(cfg.GroupPolicy),
			Mention:   access.MentionMode(cfg.MentionMode),
			AllowList: cfg.AllowFrom,
		},
		otp:             otpMgr,
		otpSelfApproval: otpSelfApproval,
	}, nil
}

// Start connects to the WhatsApp bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// Don't fail hard — reconnect loop will keep trying
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the WhatsApp channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.SetRunning(false)

	return nil
}

// Send delivers an outbound message to the WhatsApp bridge.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	payload := map[string]interface{}{
		"type":    "message",
		"to":      msg.ChatID,
		"content": msg.Content,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}

	return nil
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	return nil
}

// listenLoop reads messages from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			// Not connected — attempt reconnect with backoff
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}

			backoff = time.Second // reset on success
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.connected = false
			c.mu.Unlock()

			continue
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("invalid whatsapp message JSON", "error", err)
			continue
		}

		msgType, _ := msg["type"].(string)
		if msgType == "message" {
			c.handleIncomingMessage(msg)
		}
	}
}

// handleIncomingMessage processes a message received from the bridge.
// Expected format: {"type":"message","from":"...","chat":"...","content":"...","id":"...","from_name":"...","media":[...]}
func (c *Channel) handleIncomingMessage(msg map[string]interface{}) {
	senderID, ok := msg["from"].(string)
	if !ok || senderID == "" {
		return
	}

	chatID, _ := msg["chat"].(string)
	if chatID == "" {
		chatID = senderID
	}

	// WhatsApp groups have chatID ending in "@g.us"
	peerKind := "direct"
	if strings.HasSuffix(chatID, "@g.us") {
		peerKind = "group"
	}

	content, _ := msg["content"].(string)

	// DM/Group access control (§4.1), with the DM-allowlist-miss OTP
	// self-approval flow (§4.2) layered on top.
	if peerKind == "direct" {
		if _, approved := c.otpApproved.Load(senderID); !approved {
			ok, reason := c.policy.Check(access.PeerDirect, senderID, false)
			if !ok && reason == access.DenyNotOnAllowlist && c.otpSelfApproval {
				c.handleOtpFlow(senderID, chatID, content)
				return
			}
			if !ok {
				slog.Debug("whatsapp message rejected by access policy", "sender_id", senderID, "reason", reason)
				return
			}
		}
	} else {
		mentioned, _ := msg["mentioned"].(bool)
		ok, reason := c.policy.Check(access.PeerGroup, senderID, mentioned)
		if !ok {
			slog.Debug("whatsapp group message rejected by access policy", "sender_id", senderID, "reason", reason)
			return
		}
	}

	if content == "" {
		content = "[empty message]"
	}

	var media []string
	if mediaData, ok := msg["media"].([]interface{}); ok {
		media = make([]string, 0, len(mediaData))
		for _, m := range mediaData {
			if path, ok := m.(string); ok {
				media = append(media, path)
			}
		}
	}

	metadata := make(map[string]string)
	if messageID, ok := msg["id"].(string); ok {
		metadata["message_id"] = messageID
	}
	if userName, ok := msg["from_name"].(string); ok {
		metadata["user_name"] = userName
	}

	slog.Debug("whatsapp message received",
		"sender_id", senderID,
		"chat_id", chatID,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(senderID, chatID, content, media, metadata, peerKind)
}

// --- OTP self-approval UX (§4.2) ---

// handleOtpFlow drives the DM self-approval state machine for a sender that
// just failed allowlist access. It never echoes the code back into chat.
func (c *Channel) handleOtpFlow(senderID, chatID, text string) {
	key := c.Name() + "|" + senderID

	if c.otp.Pending(key) {
		if !access.LooksLikeCode(text) {
			// Ambient chatter while a challenge is outstanding: stay silent.
			return
		}

		switch c.otp.Verify(key, text) {
		case access.VerifyOK:
			c.otpApproved.Store(senderID, true)
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedApproved},
			})
			c.sendWhatsAppReply(chatID, "Access approved. Send your message again to continue.")

		case access.VerifyMismatch:
			c.sendWhatsAppReply(chatID, "That code didn't match. Try again.")

		case access.VerifyLockedOut:
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedLockedOut},
			})
			c.sendWhatsAppReply(chatID, "Too many wrong codes. Try again in a few minutes.")

		case access.VerifyExpired:
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedExpired},
			})
			c.sendWhatsAppReply(chatID, "That code expired. Send any message to get a new one.")

		case access.VerifyNoPending:
			// Raced with expiry cleanup; nothing to do.
		}
		return
	}

	result, code, err := c.otp.Initiate(key)
	if err != nil {
		slog.Warn("whatsapp: otp initiate failed", "sender_id", senderID, "error", err)
		return
	}

	switch result {
	case access.InitiateCreated:
		c.Bus().Broadcast(bus.Event{
			Name:    protocol.EventOtpChallenge,
			Payload: access.OtpChallengePayload{Channel: c.Name(), SenderID: senderID, Code: code},
		})
		c.sendWhatsAppReply(chatID,
			"Moltis: access not configured for this account.\n\n"+
				"A one-time code has been sent to the operator. Reply with the 6-digit "+
				"code within 5 minutes to approve yourself.")
		slog.Info("whatsapp otp challenge issued", "sender_id", senderID)

	case access.InitiateAlreadyPending, access.InitiateLockedOut:
		// Stay silent per §4.2.
	}
}

// sendWhatsAppReply sends a plain text message to chatID via the WS bridge.
func (c *Channel) sendWhatsAppReply(chatID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		slog.Warn("whatsapp bridge not connected, cannot send otp reply")
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"type":    "message",
		"to":      chatID,
		"content": text,
	})

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Warn("failed to send whatsapp otp reply", "error", err)
	}
}
