package methods

import (
	"context"

	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func registerNetfilter(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodDomainApprovalApprove, protocol.ScopeApprovals, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			Host string `json:"host"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.DomainApprovals == nil {
			return nil, errNotFound("no domain approval manager configured")
		}
		deps.DomainApprovals.RecordApproval(p.Host)
		return map[string]any{"approved": true}, nil
	})

	d.Register(protocol.MethodDomainApprovalDeny, protocol.ScopeApprovals, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		// Denied is the approval manager's default verdict for anything
		// not explicitly approved or trusted, so there is nothing to
		// record here beyond acknowledging the operator's decision.
		return map[string]any{"denied": true}, nil
	})

	d.Register(protocol.MethodDomainsList, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.DomainApprovals == nil {
			return map[string]any{"trusted": []string{}}, nil
		}
		return map[string]any{"trusted": deps.DomainApprovals.ListTrustedDomains()}, nil
	})

	d.Register(protocol.MethodDomainsTrust, protocol.ScopeApprovals, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			Host string `json:"host"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.DomainApprovals == nil {
			return nil, errNotFound("no domain approval manager configured")
		}
		deps.DomainApprovals.AddTrustedDomain(p.Host)
		return map[string]any{"trusted": true}, nil
	})

	d.Register(protocol.MethodDomainsUntrust, protocol.ScopeApprovals, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			Host string `json:"host"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.DomainApprovals == nil {
			return nil, errNotFound("no domain approval manager configured")
		}
		deps.DomainApprovals.RemoveTrustedDomain(p.Host)
		return map[string]any{"untrusted": true}, nil
	})

	d.Register(protocol.MethodAuditQuery, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			Limit int `json:"limit"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Audit == nil {
			return map[string]any{"entries": nil}, nil
		}
		return map[string]any{"entries": deps.Audit.Recent(p.Limit)}, nil
	})

	d.Register(protocol.MethodAuditStats, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Audit == nil {
			return map[string]any{"count": 0}, nil
		}
		entries := deps.Audit.Recent(0)
		allowed, denied := 0, 0
		for _, e := range entries {
			if e.Decision == 0 || e.Decision == 1 {
				allowed++
			} else {
				denied++
			}
		}
		return map[string]any{"count": len(entries), "allowed": allowed, "denied": denied}, nil
	})
}
