package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jsdzhang/moltis/internal/agent"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/sessions"
)

// runLimiter bounds how many agent runs a single session key may have in
// flight at once and lets /stop and /stopall cancel them. A session with no
// entry yet gets its gate created lazily on first use.
type runLimiter struct {
	mu      sync.Mutex
	nextID  int
	sems    map[string]chan struct{}
	cancels map[string][]cancelEntry
}

type cancelEntry struct {
	id     int
	cancel context.CancelFunc
}

func newRunLimiter() *runLimiter {
	return &runLimiter{
		sems:    make(map[string]chan struct{}),
		cancels: make(map[string][]cancelEntry),
	}
}

// acquire blocks until a concurrency slot for sessionKey frees up (or ctx is
// cancelled), then returns a cancellable run context and a release func the
// caller must call exactly once when the run finishes.
func (l *runLimiter) acquire(ctx context.Context, sessionKey string, max int) (context.Context, func(), error) {
	if max <= 0 {
		max = 1
	}
	l.mu.Lock()
	sem, ok := l.sems[sessionKey]
	if !ok {
		sem = make(chan struct{}, max)
		l.sems[sessionKey] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.cancels[sessionKey] = append(l.cancels[sessionKey], cancelEntry{id: id, cancel: cancel})
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		entries := l.cancels[sessionKey]
		for i, e := range entries {
			if e.id == id {
				l.cancels[sessionKey] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
		cancel()
		<-sem
	}
	return runCtx, release, nil
}

// cancelOne cancels the oldest active run for sessionKey ("/stop").
func (l *runLimiter) cancelOne(sessionKey string) bool {
	l.mu.Lock()
	entries := l.cancels[sessionKey]
	if len(entries) == 0 {
		l.mu.Unlock()
		return false
	}
	oldest := entries[0]
	l.cancels[sessionKey] = entries[1:]
	l.mu.Unlock()
	oldest.cancel()
	return true
}

// cancelAll cancels every active run for sessionKey ("/stopall").
func (l *runLimiter) cancelAll(sessionKey string) bool {
	l.mu.Lock()
	entries := l.cancels[sessionKey]
	delete(l.cancels, sessionKey)
	l.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
	return len(entries) > 0
}

// runOutcome mirrors the old scheduler's channel-delivered result shape.
type runOutcome struct {
	Result *agent.RunResult
	Err    error
}

// runAsync acquires a concurrency slot, runs req against the target agent in
// a goroutine, and returns a channel that receives exactly one runOutcome.
func runAsync(ctx context.Context, agents *agent.Router, limiter *runLimiter, agentID, sessionKey string, maxConcurrent int, req agent.RunRequest) <-chan runOutcome {
	out := make(chan runOutcome, 1)
	go func() {
		runCtx, release, err := limiter.acquire(ctx, sessionKey, maxConcurrent)
		if err != nil {
			out <- runOutcome{Err: err}
			return
		}
		defer release()

		loop, err := agents.Get(agentID)
		if err != nil {
			out <- runOutcome{Err: err}
			return
		}
		result, err := loop.Run(runCtx, req)
		out <- runOutcome{Result: result, Err: err}
	}()
	return out
}

// consumeInboundMessages reads inbound messages from channels (Telegram, Discord, etc.)
// and dispatches them directly to the target agent's loop, then publishes the
// response back. Also handles subagent announcements: routes them through the
// parent agent's session so the agent can reformulate for the user.
func consumeInboundMessages(ctx context.Context, msgBus *bus.MessageBus, agents *agent.Router, cfg *config.Config, limiter *runLimiter, channelMgr *channels.Manager) {
	slog.Info("inbound message consumer started")

	// Inbound message deduplication. TTL=20min, max=5000 entries — prevents
	// webhook retries / double-taps from duplicating agent runs.
	dedupe := bus.NewDedupeCache(20*time.Minute, 5000)

	// processNormalMessage handles routing and response delivery for a single
	// inbound message (after debouncing, the latest of a burst from one sender).
	processNormalMessage := func(msg bus.InboundMessage) {
		agentID := msg.AgentID
		if agentID == "" {
			agentID = resolveAgentRoute(cfg, msg.Channel, msg.ChatID, msg.PeerKind)
		}

		if _, err := agents.Get(agentID); err != nil {
			slog.Warn("inbound: agent not found", "agent", agentID, "channel", msg.Channel)
			return
		}

		peerKind := msg.PeerKind
		if peerKind == "" {
			peerKind = string(sessions.PeerDirect)
		}
		sessionKey := sessions.BuildScopedSessionKey(agentID, msg.Channel, sessions.PeerKind(peerKind), msg.ChatID, cfg.Sessions.Scope, cfg.Sessions.DmScope, cfg.Sessions.MainKey)

		// Forum topic: override session key to isolate per-topic history.
		if msg.Metadata["is_forum"] == "true" && peerKind == string(sessions.PeerGroup) {
			var topicID int
			fmt.Sscanf(msg.Metadata["message_thread_id"], "%d", &topicID)
			if topicID > 0 {
				sessionKey = sessions.BuildGroupTopicSessionKey(agentID, msg.Channel, msg.ChatID, topicID)
			}
		}

		// Group-scoped UserID: treat the group as a single "virtual user" for
		// context files, memory, and seeding. Individual senderID is
		// preserved in the InboundMessage for pairing/dedup/mention gate.
		userID := msg.UserID
		if peerKind == string(sessions.PeerGroup) && msg.ChatID != "" {
			groupID := msg.ChatID
			if guildID := msg.Metadata["guild_id"]; guildID != "" {
				groupID = guildID
			}
			userID = fmt.Sprintf("group:%s:%s", msg.Channel, groupID)
		}

		slog.Info("inbound: dispatching message",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"peer_kind", peerKind,
			"agent", agentID,
			"session", sessionKey,
			"user_id", userID,
		)

		// Streaming: only on channels that support it, and never in group
		// chats (concurrent runs would interleave chunks).
		enableStream := channelMgr != nil && channelMgr.IsStreamingChannel(msg.Channel)
		if peerKind == string(sessions.PeerGroup) {
			enableStream = false
		}

		// Group chats allow a few concurrent runs (several users chatting at
		// once); DMs are serialized per session.
		maxConcurrent := 1
		if peerKind == string(sessions.PeerGroup) {
			maxConcurrent = 3
		}

		runID := fmt.Sprintf("inbound-%s-%s-%s", msg.Channel, msg.ChatID, uuid.NewString()[:8])

		messageID := 0
		if mid := msg.Metadata["message_id"]; mid != "" {
			fmt.Sscanf(mid, "%d", &messageID)
		}
		chatIDForRun := msg.ChatID
		if lk := msg.Metadata["local_key"]; lk != "" {
			chatIDForRun = lk
		}
		if channelMgr != nil {
			channelMgr.RegisterRun(runID, msg.Channel, chatIDForRun, messageID)
		}

		var extraPrompt string
		if peerKind == string(sessions.PeerGroup) {
			extraPrompt = "You are in a GROUP chat (multiple participants), not a private 1-on-1 DM.\n" +
				"- Messages may include a [Chat messages since your last reply] section with recent group history. Each history line shows \"sender [time]: message\".\n" +
				"- The current message includes a [From: sender_name] tag identifying who @mentioned you.\n" +
				"- Keep responses concise and focused; long replies are disruptive in groups.\n" +
				"- Address the group naturally. If the history shows a multi-person conversation, consider the full context before answering."
		}

		outCh := runAsync(ctx, agents, limiter, agentID, sessionKey, maxConcurrent, agent.RunRequest{
			SessionKey:        sessionKey,
			Message:           msg.Content,
			Media:             msg.Media,
			Channel:           msg.Channel,
			ChatID:            msg.ChatID,
			PeerKind:          peerKind,
			UserID:            userID,
			SenderID:          msg.SenderID,
			RunID:             runID,
			Stream:            enableStream,
			HistoryLimit:      msg.HistoryLimit,
			ExtraSystemPrompt: extraPrompt,
		})

		// message_id → reply_to_message_id so Send() replies to the user's message.
		outMeta := make(map[string]string)
		if mid := msg.Metadata["message_id"]; mid != "" {
			outMeta["reply_to_message_id"] = mid
		}
		for _, k := range []string{"message_thread_id", "local_key", "placeholder_key"} {
			if v := msg.Metadata[k]; v != "" {
				outMeta[k] = v
			}
		}

		go func(channel, chatID, session, rID string, meta map[string]string) {
			outcome := <-outCh

			if channelMgr != nil {
				channelMgr.UnregisterRun(rID)
			}

			if outcome.Err != nil {
				if errors.Is(outcome.Err, context.Canceled) {
					slog.Info("inbound: run cancelled", "channel", channel, "session", session)
					msgBus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Metadata: meta})
					return
				}
				slog.Error("inbound: agent run failed", "error", outcome.Err, "channel", channel)
				msgBus.PublishOutbound(bus.OutboundMessage{
					Channel:  channel,
					ChatID:   chatID,
					Content:  formatAgentError(outcome.Err),
					Metadata: meta,
				})
				return
			}

			if outcome.Result.Content == "" || agent.IsSilentReply(outcome.Result.Content) {
				slog.Info("inbound: suppressed silent/empty reply", "channel", channel, "chat_id", chatID, "session", session)
				msgBus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Metadata: meta})
				return
			}

			outMsg := bus.OutboundMessage{
				Channel:  channel,
				ChatID:   chatID,
				Content:  outcome.Result.Content,
				Metadata: meta,
			}
			for _, mr := range outcome.Result.Media {
				outMsg.Media = append(outMsg.Media, bus.MediaAttachment{URL: mr.Path, ContentType: mr.ContentType})
				if mr.AsVoice {
					if outMsg.Metadata == nil {
						outMsg.Metadata = make(map[string]string)
					}
					outMsg.Metadata["audio_as_voice"] = "true"
				}
			}
			msgBus.PublishOutbound(outMsg)
		}(msg.Channel, msg.ChatID, sessionKey, runID, outMeta)
	}

	// Inbound debounce: of rapid messages from the same sender, only the latest is processed.
	debounceMs := cfg.Gateway.InboundDebounceMs
	if debounceMs == 0 {
		debounceMs = 1000
	}
	debouncer := bus.NewInboundDebouncer(time.Duration(debounceMs)*time.Millisecond, processNormalMessage)
	defer debouncer.Stop()

	slog.Info("inbound debounce configured", "debounce_ms", debounceMs)

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return
		}

		if msgID := msg.Metadata["message_id"]; msgID != "" {
			dedupeKey := fmt.Sprintf("%s|%s|%s|%s", msg.Channel, msg.SenderID, msg.ChatID, msgID)
			if dedupe.IsDuplicate(dedupeKey) {
				slog.Debug("dedup: skipping duplicate message", "key", dedupeKey)
				continue
			}
		}

		// Subagent announce: bypass debounce, inject into parent agent session.
		if msg.Channel == "system" && strings.HasPrefix(msg.SenderID, "subagent:") {
			origChannel := msg.Metadata["origin_channel"]
			origPeerKind := msg.Metadata["origin_peer_kind"]
			parentAgent := msg.Metadata["parent_agent"]
			if parentAgent == "" {
				parentAgent = config.DefaultAgentID
			}
			if origPeerKind == "" {
				origPeerKind = string(sessions.PeerDirect)
			}
			if origChannel == "" || msg.ChatID == "" {
				slog.Warn("subagent announce: missing origin", "sender", msg.SenderID)
				continue
			}

			sessionKey := sessions.BuildScopedSessionKey(parentAgent, origChannel, sessions.PeerKind(origPeerKind), msg.ChatID, cfg.Sessions.Scope, cfg.Sessions.DmScope, cfg.Sessions.MainKey)

			slog.Info("subagent announce → agent dispatch",
				"subagent", msg.SenderID,
				"label", msg.Metadata["subagent_label"],
				"session", sessionKey,
			)

			var parentTraceID, parentRootSpanID uuid.UUID
			if tid := msg.Metadata["origin_trace_id"]; tid != "" {
				parentTraceID, _ = uuid.Parse(tid)
			}
			if sid := msg.Metadata["origin_root_span_id"]; sid != "" {
				parentRootSpanID, _ = uuid.Parse(sid)
			}

			announceUserID := msg.UserID
			if origPeerKind == string(sessions.PeerGroup) && msg.ChatID != "" {
				announceUserID = fmt.Sprintf("group:%s:%s", origChannel, msg.ChatID)
			}

			outCh := runAsync(ctx, agents, limiter, parentAgent, sessionKey, 1, agent.RunRequest{
				SessionKey:       sessionKey,
				Message:          msg.Content,
				Channel:          origChannel,
				ChatID:           msg.ChatID,
				PeerKind:         origPeerKind,
				UserID:           announceUserID,
				RunID:            fmt.Sprintf("announce-%s", msg.SenderID),
				Stream:           false,
				ParentTraceID:    parentTraceID,
				ParentRootSpanID: parentRootSpanID,
			})

			go func(origCh, chatID, senderID, label string) {
				outcome := <-outCh
				if outcome.Err != nil {
					slog.Error("subagent announce: agent run failed", "error", outcome.Err)
					msgBus.PublishOutbound(bus.OutboundMessage{Channel: origCh, ChatID: chatID, Content: formatAgentError(outcome.Err)})
					return
				}
				if outcome.Result.Content == "" || agent.IsSilentReply(outcome.Result.Content) {
					slog.Info("subagent announce: suppressed silent/empty reply", "subagent", senderID, "label", label)
					return
				}
				msgBus.PublishOutbound(bus.OutboundMessage{Channel: origCh, ChatID: chatID, Content: outcome.Result.Content})
			}(origChannel, msg.ChatID, msg.SenderID, msg.Metadata["subagent_label"])
			continue
		}

		// /stop — cancel the oldest active run for this session.
		// /stopall — cancel every active run for this session.
		if cmd := msg.Metadata["command"]; cmd == "stop" || cmd == "stopall" {
			agentID := msg.AgentID
			if agentID == "" {
				agentID = resolveAgentRoute(cfg, msg.Channel, msg.ChatID, msg.PeerKind)
			}
			peerKind := msg.PeerKind
			if peerKind == "" {
				peerKind = string(sessions.PeerDirect)
			}
			sessionKey := sessions.BuildScopedSessionKey(agentID, msg.Channel, sessions.PeerKind(peerKind), msg.ChatID, cfg.Sessions.Scope, cfg.Sessions.DmScope, cfg.Sessions.MainKey)
			if msg.Metadata["is_forum"] == "true" && peerKind == string(sessions.PeerGroup) {
				var topicID int
				fmt.Sscanf(msg.Metadata["message_thread_id"], "%d", &topicID)
				if topicID > 0 {
					sessionKey = sessions.BuildGroupTopicSessionKey(agentID, msg.Channel, msg.ChatID, topicID)
				}
			}

			var cancelled bool
			if cmd == "stopall" {
				cancelled = limiter.cancelAll(sessionKey)
				slog.Info("inbound: /stopall command", "session", sessionKey, "cancelled", cancelled)
			} else {
				cancelled = limiter.cancelOne(sessionKey)
				slog.Info("inbound: /stop command", "session", sessionKey, "cancelled", cancelled)
			}

			var feedback string
			switch {
			case cancelled && cmd == "stopall":
				feedback = "All tasks stopped."
			case cancelled:
				feedback = "Task stopped."
			case cmd == "stopall":
				feedback = "No active tasks to stop."
			default:
				feedback = "No active task to stop."
			}
			msgBus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: feedback, Metadata: msg.Metadata})
			continue
		}

		debouncer.Push(msg)
	}
}

// resolveAgentRoute determines which agent should handle a message based on
// config bindings. Priority: peer → channel → default.
func resolveAgentRoute(cfg *config.Config, channel, chatID, peerKind string) string {
	for _, binding := range cfg.Bindings {
		match := binding.Match
		if match.Channel != channel {
			continue
		}
		if match.Peer != nil {
			if match.Peer.Kind == peerKind && match.Peer.ID == chatID {
				return config.NormalizeAgentID(binding.AgentID)
			}
			continue
		}
		return config.NormalizeAgentID(binding.AgentID)
	}
	return cfg.ResolveDefaultAgentID()
}

// formatAgentError turns an agent run error into a user-facing message,
// without leaking internal details (stack traces, API error bodies).
func formatAgentError(err error) string {
	if err == nil {
		return "Something went wrong processing your message."
	}
	return "Sorry, I ran into an error processing that message."
}
