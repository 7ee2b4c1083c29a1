package methods

import (
	"context"

	"github.com/jsdzhang/moltis/internal/coordination"
	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func registerCoordination(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodTaskListCreate, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			BlockedBy   []int  `json:"blockedBy"`
			CreatedBy   string `json:"createdBy"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Tasks == nil {
			return nil, errNotFound("no task list configured")
		}
		t, err := deps.Tasks.Create(p.Title, p.Description, p.BlockedBy, p.CreatedBy)
		if err != nil {
			return nil, errInternal(err)
		}
		return t, nil
	})

	d.Register(protocol.MethodTaskListList, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Tasks == nil {
			return map[string]any{"tasks": nil}, nil
		}
		return map[string]any{"tasks": deps.Tasks.All()}, nil
	})

	d.Register(protocol.MethodTaskListGet, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ID int `json:"id"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Tasks == nil {
			return nil, errNotFound("no task list configured")
		}
		t, ok := deps.Tasks.Get(p.ID)
		if !ok {
			return nil, errNotFound("no such task")
		}
		return t, nil
	})

	d.Register(protocol.MethodTaskListUpdate, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ID          int     `json:"id"`
			Title       *string `json:"title"`
			Description *string `json:"description"`
			Status      *string `json:"status"`
			Owner       *string `json:"owner"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Tasks == nil {
			return nil, errNotFound("no task list configured")
		}
		t, err := deps.Tasks.Update(p.ID, func(task *coordination.Task) {
			if p.Title != nil {
				task.Title = *p.Title
			}
			if p.Description != nil {
				task.Description = *p.Description
			}
			if p.Status != nil {
				task.Status = coordination.Status(*p.Status)
			}
			if p.Owner != nil {
				task.Owner = *p.Owner
			}
		})
		if err != nil {
			return nil, errInternal(err)
		}
		return t, nil
	})

	d.Register(protocol.MethodTaskListClaim, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ID    int    `json:"id"`
			Owner string `json:"owner"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Tasks == nil {
			return nil, errNotFound("no task list configured")
		}
		t, err := deps.Tasks.Claim(p.ID, p.Owner)
		if err != nil {
			return nil, errInternal(err)
		}
		return t, nil
	})

	d.Register(protocol.MethodSubAgentSpawn, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ParentSessionID string   `json:"parentSessionId"`
			Task            string   `json:"task"`
			ToolAllow       []string `json:"toolAllow"`
			ToolDeny        []string `json:"toolDeny"`
			Model           string   `json:"model"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Spawner == nil {
			return nil, errNotFound("no sub-agent spawner configured")
		}
		output, err := deps.Spawner.Spawn(ctx, coordination.SpawnRequest{
			ParentSessionID: p.ParentSessionID,
			Task:            p.Task,
			ToolAllow:       p.ToolAllow,
			ToolDeny:        p.ToolDeny,
			Model:           p.Model,
		})
		if err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"output": output}, nil
	})

	d.Register(protocol.MethodSessionsMsgList, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Messages == nil {
			return map[string]any{"messages": nil}, nil
		}
		return map[string]any{"messages": deps.Messages.History(p.SessionID)}, nil
	})

	d.Register(protocol.MethodSessionsMsgHistory, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Messages == nil {
			return map[string]any{"messages": nil}, nil
		}
		return map[string]any{"messages": deps.Messages.History(p.SessionID)}, nil
	})

	d.Register(protocol.MethodSessionsMsgSend, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p coordination.SessionMessage
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Messages == nil {
			return nil, errNotFound("no inter-session message log configured")
		}
		deps.Messages.Send(p)
		return map[string]any{"sent": true}, nil
	})
}
