package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/channels/typing"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/store"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session         *discordgo.Session
	config          config.DiscordConfig
	botUserID       string   // populated on start
	botUsername     string   // populated on start
	placeholders    sync.Map // placeholderKey string → messageID string
	typingCtrls     sync.Map // channelID string → *typing.Controller
	pairingService  store.PairingStore
	otpApproved     sync.Map // userID string → true (runtime allowlist from OTP self-approval)
	groupHistory    *channels.PendingHistory
	historyLimit    int
	policy          access.Policy
	otp             *access.OTPManager
	otpSelfApproval bool
}

// New creates a new Discord channel from config.
// otpMgr is the gateway-wide self-approval manager (§4.2), shared across
// channel plugins so an operator can revoke a pending challenge regardless
// of which plugin issued it.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus, pairingSvc store.PairingStore, otpMgr *access.OTPManager) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	// Request necessary intents
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	base := channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom)

	mentionMode := access.MentionMode(cfg.MentionMode)
	if mentionMode == "" {
		mentionMode = access.MentionModeMention
		if cfg.RequireMention != nil && !*cfg.RequireMention {
			mentionMode = access.MentionModeAlways // deprecated require_mention=false means "always"
		}
	}

	otpSelfApproval := true
	if cfg.OtpSelfApproval != nil {
		otpSelfApproval = *cfg.OtpSelfApproval
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit == 0 {
		historyLimit = channels.DefaultGroupHistoryLimit
	}

	return &Channel{
		BaseChannel:    base,
		session:        session,
		config:         cfg,
		pairingService: pairingSvc,
		groupHistory:   channels.NewPendingHistory(),
		historyLimit:   historyLimit,
		policy: access.Policy{
			DM:        access.DMPolicy(cfg.DMPolicy),
			Group:     access.GroupPolicy(cfg.GroupPolicy),
			Mention:   mentionMode,
			AllowList: cfg.AllowFrom,
		},
		otp:             otpMgr,
		otpSelfApproval: otpSelfApproval,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	// Fetch bot identity
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.botUsername = user.Username

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	// Resolve placeholder key from metadata (inbound message ID), fall back to channelID.
	// Keying by message ID prevents race conditions when multiple messages
	// arrive in the same channel before the first response is sent.
	placeholderKey := channelID
	if pk := msg.Metadata["placeholder_key"]; pk != "" {
		placeholderKey = pk
	}

	// Placeholder update (e.g. LLM retry notification): edit the placeholder
	// but keep it alive for the final response. Don't stop typing or cleanup.
	if msg.Metadata["placeholder_update"] == "true" {
		if pID, ok := c.placeholders.Load(placeholderKey); ok {
			msgID := pID.(string)
			_, _ = c.session.ChannelMessageEdit(channelID, msgID, msg.Content)
		}
		return nil
	}

	// Stop typing indicator controller
	if ctrl, ok := c.typingCtrls.LoadAndDelete(channelID); ok {
		ctrl.(*typing.Controller).Stop()
	}

	content := msg.Content

	// NO_REPLY cleanup: content is empty when agent suppresses reply.
	// Delete placeholder and return without sending any message.
	if content == "" {
		if pID, ok := c.placeholders.Load(placeholderKey); ok {
			c.placeholders.Delete(placeholderKey)
			msgID := pID.(string)
			_ = c.session.ChannelMessageDelete(channelID, msgID)
		}
		return nil
	}

	// Try to edit the placeholder "Thinking..." message with the first chunk,
	// then send the rest as follow-up messages.
	if pID, ok := c.placeholders.Load(placeholderKey); ok {
		c.placeholders.Delete(placeholderKey)
		msgID := pID.(string)

		const maxLen = 2000
		editContent := content
		remaining := ""

		if len(editContent) > maxLen {
			// Break at a newline if possible
			cutAt := maxLen
			if idx := lastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
				cutAt = idx + 1
			}
			editContent = content[:cutAt]
			remaining = content[cutAt:]
		}

		if _, editErr := c.session.ChannelMessageEdit(channelID, msgID, editContent); editErr == nil {
			// Send remaining content as follow-up messages
			if remaining != "" {
				return c.sendChunked(channelID, remaining)
			}
			return nil
		} else {
			slog.Warn("discord: placeholder edit failed, sending new message",
				"channel_id", channelID, "placeholder_id", msgID, "error", editErr)
		}
		// Fall through to send new message if edit fails
	}

	// Send as new message(s), chunking if needed
	return c.sendChunked(channelID, content)
}

// sendChunked sends a message, splitting into multiple messages if over 2000 chars.
func (c *Channel) sendChunked(channelID, content string) error {
	const maxLen = 2000

	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			// Try to break at a newline
			cutAt := maxLen
			if idx := lastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}

		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}

	return nil
}

// handleMessage processes incoming Discord messages.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bot's own messages
	if m.Author == nil || m.Author.ID == c.botUserID {
		return
	}

	// Ignore bot messages
	if m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	senderName := resolveDisplayName(m)

	channelID := m.ChannelID
	isDM := m.GuildID == ""

	// DM/Group policy check
	peerKind := "group"
	if isDM {
		peerKind = "direct"
	}

	// Build content early: the OTP challenge handler needs the raw text.
	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}

	if isDM {
		if _, approved := c.otpApproved.Load(senderID); !approved {
			ok, reason := c.policy.Check(access.PeerDirect, senderID, false)
			if !ok && reason == access.DenyNotOnAllowlist && c.otpSelfApproval {
				c.handleOtpFlow(senderID, senderID, channelID, content)
				return
			}
			if !ok {
				slog.Debug("discord message rejected by access policy",
					"user_id", senderID, "username", senderName, "reason", reason,
				)
				return
			}
		}
	} else {
		if ok, reason := c.policy.Check(access.PeerGroup, senderID, true); !ok {
			slog.Debug("discord group message rejected by access policy",
				"user_id", senderID, "username", senderName, "reason", reason,
			)
			return
		}
	}

	if content == "" {
		content = "[empty message]"
	}

	// Mention gating (§4.1 MentionMode): only evaluated for group messages.
	// When not mentioned, record message to pending history for later context.
	if peerKind == "group" {
		mentioned := false
		for _, u := range m.Mentions {
			if u.ID == c.botUserID {
				mentioned = true
				break
			}
		}

		ok, reason := c.policy.CheckMention(mentioned)
		if !ok {
			if reason == access.DenyNotMentioned {
				c.groupHistory.Record(channelID, channels.HistoryEntry{
					Sender:    senderName,
					Body:      content,
					Timestamp: m.Timestamp,
					MessageID: m.ID,
				}, c.historyLimit)
			}

			slog.Debug("discord group message not forwarded",
				"channel_id", channelID,
				"user_id", senderID,
				"username", senderName,
				"reason", reason,
			)
			return
		}
	}

	slog.Debug("discord message received",
		"sender_id", senderID,
		"channel_id", channelID,
		"is_dm", isDM,
		"preview", channels.Truncate(content, 50),
	)

	// Send typing indicator with keepalive + TTL safety net.
	// Discord typing expires after 10s, so keepalive every 9s.
	// TTL auto-stops after 60s to prevent stuck indicators.
	typingCtrl := typing.New(typing.Options{
		MaxDuration:       60 * time.Second,
		KeepaliveInterval: 9 * time.Second,
		StartFn: func() error {
			return c.session.ChannelTyping(channelID)
		},
	})
	// Stop previous typing controller for this channel (if any)
	if prev, ok := c.typingCtrls.Load(channelID); ok {
		prev.(*typing.Controller).Stop()
	}
	c.typingCtrls.Store(channelID, typingCtrl)
	typingCtrl.Start()

	// Send placeholder "Thinking..." message.
	// Key by inbound message ID (not channel ID) to avoid race conditions
	// when multiple messages arrive in the same channel concurrently.
	placeholder, err := c.session.ChannelMessageSend(channelID, "Thinking...")
	if err == nil {
		c.placeholders.Store(m.ID, placeholder.ID)
	}

	// Build final content with group context.
	finalContent := content
	if peerKind == "group" {
		annotated := fmt.Sprintf("[From: %s]\n%s", senderName, content)
		if c.historyLimit > 0 {
			finalContent = c.groupHistory.BuildContext(channelID, annotated, c.historyLimit)
		} else {
			finalContent = annotated
		}
	}

	metadata := map[string]string{
		"message_id":      m.ID,
		"user_id":         senderID,
		"username":        m.Author.Username,
		"display_name":    senderName,
		"guild_id":        m.GuildID,
		"channel_id":      channelID,
		"is_dm":           fmt.Sprintf("%t", isDM),
		"placeholder_key": m.ID, // keyed by inbound message ID for placeholder lookup
	}

	c.HandleMessage(senderID, channelID, finalContent, nil, metadata, peerKind)

	// Clear pending history after sending to agent.
	if peerKind == "group" {
		c.groupHistory.Clear(channelID)
	}
}

// --- OTP self-approval UX (§4.2) ---

// handleOtpFlow drives the DM self-approval state machine for a sender that
// just failed allowlist access. It never echoes the code back into chat.
func (c *Channel) handleOtpFlow(userID, senderID, channelID, text string) {
	key := c.Name() + "|" + senderID

	if c.otp.Pending(key) {
		if !access.LooksLikeCode(text) {
			// Ambient chatter while a challenge is outstanding: stay silent.
			return
		}

		switch c.otp.Verify(key, text) {
		case access.VerifyOK:
			c.otpApproved.Store(userID, true)
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedApproved},
			})
			c.sendDiscordReply(channelID, "Access approved. Send your message again to continue.")

		case access.VerifyMismatch:
			c.sendDiscordReply(channelID, "That code didn't match. Try again.")

		case access.VerifyLockedOut:
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedLockedOut},
			})
			c.sendDiscordReply(channelID, "Too many wrong codes. Try again in a few minutes.")

		case access.VerifyExpired:
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedExpired},
			})
			c.sendDiscordReply(channelID, "That code expired. Send any message to get a new one.")

		case access.VerifyNoPending:
			// Raced with expiry cleanup; nothing to do.
		}
		return
	}

	result, code, err := c.otp.Initiate(key)
	if err != nil {
		slog.Warn("discord: otp initiate failed", "user_id", userID, "error", err)
		return
	}

	switch result {
	case access.InitiateCreated:
		c.Bus().Broadcast(bus.Event{
			Name:    protocol.EventOtpChallenge,
			Payload: access.OtpChallengePayload{Channel: c.Name(), SenderID: senderID, Code: code},
		})
		c.sendDiscordReply(channelID,
			"Moltis: access not configured for this account.\n\n"+
				"A one-time code has been sent to the operator. Reply with the 6-digit "+
				"code within 5 minutes to approve yourself.")
		slog.Info("discord otp challenge issued", "user_id", userID)

	case access.InitiateAlreadyPending, access.InitiateLockedOut:
		// Stay silent per §4.2.
	}
}

// sendDiscordReply sends a plain text message to channelID.
func (c *Channel) sendDiscordReply(channelID, text string) {
	if _, err := c.session.ChannelMessageSend(channelID, text); err != nil {
		slog.Warn("discord: failed to send otp reply", "channel_id", channelID, "error", err)
	}
}

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// lastIndexByte returns the last index of byte c in s, or -1.
func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
