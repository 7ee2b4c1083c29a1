package methods

import (
	"context"

	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func registerSandbox(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodSandboxStatus, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Sandbox == nil {
			return map[string]any{"enabled": false}, nil
		}
		return map[string]any{"enabled": true}, nil
	})

	d.Register(protocol.MethodSandboxRestart, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Sandbox == nil {
			return nil, errNotFound("sandbox is disabled")
		}
		// No per-key restart hook exists; Prune evicts idle/aged
		// sandboxes so the next tool call gets a fresh container.
		removed, err := deps.Sandbox.Prune(ctx)
		if err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"pruned": removed}, nil
	})

	d.Register(protocol.MethodSandboxStop, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Sandbox == nil {
			return nil, errNotFound("sandbox is disabled")
		}
		if err := deps.Sandbox.Close(ctx); err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"stopped": true}, nil
	})

	d.Register(protocol.MethodBrowserPairingStatus, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Browser == nil {
			return map[string]any{"running": false}, nil
		}
		return map[string]any{"running": true, "id": deps.Browser.ID(), "wsUrl": deps.Browser.WebSocketURL()}, nil
	})

	d.Register(protocol.MethodBrowserAct, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Browser == nil {
			return nil, errNotFound("no browser container running")
		}
		// The browser container exposes a CDP WebSocket; driving it with
		// concrete actions (click/type/navigate) is a go-rod client
		// concern that belongs to the caller holding the session, not
		// this gateway-side dispatch table. Surface the connection
		// details so the caller can drive it directly.
		return map[string]any{"wsUrl": deps.Browser.WebSocketURL()}, nil
	})

	d.Register(protocol.MethodBrowserSnapshot, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Browser == nil {
			return nil, errNotFound("no browser container running")
		}
		return map[string]any{"httpUrl": deps.Browser.HTTPURL()}, nil
	})

	d.Register(protocol.MethodBrowserScreenshot, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Browser == nil {
			return nil, errNotFound("no browser container running")
		}
		return map[string]any{"httpUrl": deps.Browser.HTTPURL()}, nil
	})
}
