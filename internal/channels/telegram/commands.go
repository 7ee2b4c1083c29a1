package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

// handleBotCommand checks if the message is a known bot command and handles it.
// Returns true if the message was handled as a command.
func (c *Channel) handleBotCommand(ctx context.Context, message *telego.Message, chatID int64, chatIDStr, localKey, text, senderID string, isGroup, isForum bool, messageThreadID int) bool {
	if len(text) == 0 || text[0] != '/' {
		return false
	}

	// Extract command (strip @botname suffix if present)
	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	cmd = strings.ToLower(cmd)

	chatIDObj := tu.ID(chatID)

	// Helper: set MessageThreadID on outgoing messages for forum topics.
	// TS ref: buildTelegramThreadParams() — General topic (1) must be omitted.
	setThread := func(msg *telego.SendMessageParams) {
		sendThreadID := resolveThreadIDForSend(messageThreadID)
		if sendThreadID > 0 {
			msg.MessageThreadID = sendThreadID
		}
	}

	switch cmd {
	case "/start":
		// Don't intercept /start — let it pass through to agent loop.
		return false

	case "/help":
		helpText := "Available commands:\n" +
			"/start — Start chatting with the bot\n" +
			"/help — Show this help message\n" +
			"/reset — Reset conversation history\n" +
			"/status — Show bot status\n" +
			"\nJust send a message to chat with the AI."
		msg := tu.Message(chatIDObj, helpText)
		setThread(msg)
		c.bot.SendMessage(ctx, msg)
		return true

	case "/reset":
		// Fix: use correct PeerKind so the gateway consumer builds the right session key.
		peerKind := "direct"
		if isGroup {
			peerKind = "group"
		}
		c.Bus().PublishInbound(bus.InboundMessage{
			Channel:  c.Name(),
			SenderID: senderID,
			ChatID:   chatIDStr,
			Content:  "/reset",
			PeerKind: peerKind,
			AgentID:  c.AgentID(),
			UserID:   strings.SplitN(senderID, "|", 2)[0],
			Metadata: map[string]string{
				"command":           "reset",
				"local_key":         localKey,
				"is_forum":          fmt.Sprintf("%t", isForum),
				"message_thread_id": fmt.Sprintf("%d", messageThreadID),
			},
		})
		msg := tu.Message(chatIDObj, "Conversation history has been reset.")
		setThread(msg)
		c.bot.SendMessage(ctx, msg)
		return true

	case "/status":
		statusText := fmt.Sprintf("Bot status: Running\nChannel: Telegram\nBot: @%s", c.bot.Username())
		msg := tu.Message(chatIDObj, statusText)
		setThread(msg)
		c.bot.SendMessage(ctx, msg)
		return true

	}

	return false
}

// --- OTP self-approval UX (§4.2) ---

// handleOtpFlow drives the DM self-approval state machine for a sender that
// just failed allowlist access. It never echoes the code back into chat.
func (c *Channel) handleOtpFlow(ctx context.Context, chatID int64, userID, senderID, text string) {
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
			c.sendTelegramReply(ctx, chatID, "Access approved. Send your message again to continue.")

		case access.VerifyMismatch:
			c.sendTelegramReply(ctx, chatID, "That code didn't match. Try again.")

		case access.VerifyLockedOut:
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedLockedOut},
			})
			c.sendTelegramReply(ctx, chatID, "Too many wrong codes. Try again in a few minutes.")

		case access.VerifyExpired:
			c.Bus().Broadcast(bus.Event{
				Name:    protocol.EventOtpResolved,
				Payload: access.OtpResolvedPayload{Channel: c.Name(), SenderID: senderID, Outcome: access.OtpResolvedExpired},
			})
			c.sendTelegramReply(ctx, chatID, "That code expired. Send any message to get a new one.")

		case access.VerifyNoPending:
			// Raced with expiry cleanup; nothing to do.
		}
		return
	}

	result, code, err := c.otp.Initiate(key)
	if err != nil {
		slog.Warn("telegram: otp initiate failed", "user_id", userID, "error", err)
		return
	}

	switch result {
	case access.InitiateCreated:
		c.Bus().Broadcast(bus.Event{
			Name:    protocol.EventOtpChallenge,
			Payload: access.OtpChallengePayload{Channel: c.Name(), SenderID: senderID, Code: code},
		})
		c.sendTelegramReply(ctx, chatID,
			"Moltis: access not configured for this account.\n\n"+
				"A one-time code has been sent to the operator. Reply with the 6-digit "+
				"code within 5 minutes to approve yourself.")
		slog.Info("telegram otp challenge issued", "user_id", userID)

	case access.InitiateAlreadyPending, access.InitiateLockedOut:
		// Stay silent per §4.2.
	}
}

// sendTelegramReply sends a plain text reply to chatID.
func (c *Channel) sendTelegramReply(ctx context.Context, chatID int64, text string) {
	msg := tu.Message(tu.ID(chatID), text)
	if _, err := c.bot.SendMessage(ctx, msg); err != nil {
		slog.Warn("telegram: failed to send otp reply", "chat_id", chatID, "error", err)
	}
}

// SendPairingApproved sends the approval notification to a user.
func (c *Channel) SendPairingApproved(ctx context.Context, chatID, botName string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	if botName == "" {
		botName = "GoClaw"
	}

	msg := tu.Message(tu.ID(id), fmt.Sprintf("✅ %s access approved. Send a message to start chatting.", botName))
	_, err = c.bot.SendMessage(ctx, msg)
	return err
}

// SyncMenuCommands registers bot commands with Telegram via setMyCommands.
func (c *Channel) SyncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := c.bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}

	if len(commands) == 0 {
		return nil
	}

	if len(commands) > 100 {
		commands = commands[:100]
	}

	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: commands,
	})
}

// DefaultMenuCommands returns the default bot menu commands.
func DefaultMenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "start", Description: "Start chatting with the bot"},
		{Command: "help", Description: "Show available commands"},
		{Command: "reset", Description: "Reset conversation history"},
		{Command: "status", Description: "Show bot status"},
	}
}
