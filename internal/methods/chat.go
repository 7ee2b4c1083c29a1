package methods

import (
	"context"
	"errors"

	"github.com/jsdzhang/moltis/internal/agent"
	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/internal/sessions"
	"github.com/jsdzhang/moltis/internal/store"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

type chatSendParams struct {
	AgentID  string   `json:"agentId"`
	Channel  string   `json:"channel"`
	ChatID   string   `json:"chatId"`
	PeerKind string   `json:"peerKind"`
	Message  string   `json:"message"`
	Media    []string `json:"media,omitempty"`
}

func resolveAgentID(deps Deps, requested string) string {
	if requested != "" {
		return requested
	}
	return deps.Config.ResolveDefaultAgentID()
}

func (p chatSendParams) peerKind() sessions.PeerKind {
	if p.PeerKind == string(sessions.PeerGroup) {
		return sessions.PeerGroup
	}
	return sessions.PeerDirect
}

func registerChat(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodChatSend, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p chatSendParams
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if p.Message == "" {
			return nil, errInvalid(errors.New("message is required"))
		}
		if deps.AgentRouter == nil {
			return nil, errNotFound("no agent router configured")
		}

		agentID := resolveAgentID(deps, p.AgentID)
		loop, err := deps.AgentRouter.Get(agentID)
		if err != nil {
			return nil, errNotFound(err.Error())
		}

		sc := deps.Config.Sessions
		sessionKey := sessions.BuildScopedSessionKey(agentID, p.Channel, p.peerKind(), p.ChatID, sc.Scope, sc.DmScope, sc.MainKey)

		result, err := loop.Run(ctx, agent.RunRequest{
			SessionKey: sessionKey,
			Message:    p.Message,
			Media:      p.Media,
			Channel:    p.Channel,
			ChatID:     p.ChatID,
			PeerKind:   p.PeerKind,
			RunID:      sessionKey,
		})
		if err != nil {
			return nil, errInternal(err)
		}
		return result, nil
	})

	d.Register(protocol.MethodChatHistory, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			SessionKey string `json:"sessionKey"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Sessions == nil {
			return nil, errNotFound("no session store configured")
		}
		return map[string]any{"messages": deps.Sessions.GetHistory(p.SessionKey)}, nil
	})

	d.Register(protocol.MethodChatAbort, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		// No in-flight-run cancellation registry exists yet; abort is
		// acknowledged but the current agent run (if any) is not
		// interrupted mid-iteration.
		return map[string]any{"acknowledged": true}, nil
	})

	d.Register(protocol.MethodSessionsList, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			AgentID string `json:"agentId"`
			Limit   int    `json:"limit"`
			Offset  int    `json:"offset"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Sessions == nil {
			return nil, errNotFound("no session store configured")
		}
		return deps.Sessions.ListPaged(store.SessionListOpts{AgentID: p.AgentID, Limit: p.Limit, Offset: p.Offset}), nil
	})

	d.Register(protocol.MethodSessionsPreview, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			SessionKey string `json:"sessionKey"`
			Turns      int    `json:"turns"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Sessions == nil {
			return nil, errNotFound("no session store configured")
		}
		history := deps.Sessions.GetHistory(p.SessionKey)
		turns := p.Turns
		if turns <= 0 {
			turns = 10
		}
		if len(history) > turns {
			history = history[len(history)-turns:]
		}
		return map[string]any{"messages": history, "summary": deps.Sessions.GetSummary(p.SessionKey)}, nil
	})

	d.Register(protocol.MethodSessionsDelete, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			SessionKey string `json:"sessionKey"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Sessions == nil {
			return nil, errNotFound("no session store configured")
		}
		if err := deps.Sessions.Delete(p.SessionKey); err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"deleted": true}, nil
	})
}
