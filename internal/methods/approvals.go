package methods

import (
	"context"

	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func registerApprovals(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodApprovalsList, protocol.ScopeApprovals, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.ExecApprovals == nil {
			return map[string]any{"pending": nil}, nil
		}
		return map[string]any{"pending": deps.ExecApprovals.ListPending()}, nil
	})

	d.Register(protocol.MethodApprovalsApprove, protocol.ScopeApprovals, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.ExecApprovals == nil {
			return nil, errNotFound("no exec approval manager configured")
		}
		if !deps.ExecApprovals.Resolve(p.ID, true, p.Reason) {
			return nil, errNotFound("no pending approval with that id")
		}
		return map[string]any{"resolved": true}, nil
	})

	d.Register(protocol.MethodApprovalsDeny, protocol.ScopeApprovals, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.ExecApprovals == nil {
			return nil, errNotFound("no exec approval manager configured")
		}
		if !deps.ExecApprovals.Resolve(p.ID, false, p.Reason) {
			return nil, errNotFound("no pending approval with that id")
		}
		return map[string]any{"resolved": true}, nil
	})
}
