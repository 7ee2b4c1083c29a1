package methods

import (
	"context"

	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func registerSystem(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodHealth, "", func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		return map[string]any{"status": "ok"}, nil
	})

	d.Register(protocol.MethodStatus, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		status := map[string]any{
			"protocol": protocol.ProtocolVersion,
		}
		if deps.ChannelManager != nil {
			status["channels"] = deps.ChannelManager.GetStatus()
		}
		if deps.AgentRouter != nil {
			status["agents"] = deps.AgentRouter.List()
		}
		return status, nil
	})

	d.Register(protocol.MethodHeartbeat, "", func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		return map[string]any{"ok": true}, nil
	})
}
