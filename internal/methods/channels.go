package methods

import (
	"context"

	"github.com/jsdzhang/moltis/internal/channelrouter"
	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func registerChannels(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodChannelsList, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.ChannelManager == nil {
			return map[string]any{"channels": []string{}}, nil
		}
		return map[string]any{"channels": deps.ChannelManager.GetEnabledChannels()}, nil
	})

	d.Register(protocol.MethodChannelsStatus, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.ChannelManager == nil {
			return map[string]any{}, nil
		}
		return deps.ChannelManager.GetStatus(), nil
	})

	d.Register(protocol.MethodChannelsToggle, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ChannelType string `json:"channelType"`
			AccountID   string `json:"accountId"`
			Enabled     bool   `json:"enabled"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.ChannelAccts == nil {
			return nil, errNotFound("no channel account manager configured")
		}
		rec := channelrouter.AccountRecord{ChannelType: p.ChannelType, AccountID: p.AccountID, Enabled: p.Enabled}
		if err := deps.ChannelAccts.Update(ctx, rec); err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register(protocol.MethodChannelInstancesList, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.ChannelRouter == nil {
			return map[string]any{"instances": []channelrouter.AccountRecord{}}, nil
		}
		// The router only tracks live/known (type,id) pairs, not full
		// records; list via the manager's backing store when available.
		if deps.ChannelAccts == nil {
			return map[string]any{"instances": []channelrouter.AccountRecord{}}, nil
		}
		records, err := deps.ChannelAccts.ListAccounts()
		if err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"instances": records}, nil
	})

	d.Register(protocol.MethodChannelInstancesGet, protocol.ScopeRead, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ChannelType string `json:"channelType"`
			AccountID   string `json:"accountId"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.ChannelRouter == nil {
			return nil, errNotFound("no channel router configured")
		}
		st, ok := deps.ChannelRouter.Get(p.ChannelType, p.AccountID)
		if !ok {
			return nil, errNotFound("no such channel instance")
		}
		return st, nil
	})

	d.Register(protocol.MethodChannelInstancesCreate, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var rec channelrouter.AccountRecord
		if err := decodeParams(params, &rec); err != nil {
			return nil, errInvalid(err)
		}
		if deps.ChannelAccts == nil {
			return nil, errNotFound("no channel account manager configured")
		}
		if err := deps.ChannelAccts.Add(ctx, rec); err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register(protocol.MethodChannelInstancesUpdate, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var rec channelrouter.AccountRecord
		if err := decodeParams(params, &rec); err != nil {
			return nil, errInvalid(err)
		}
		if deps.ChannelAccts == nil {
			return nil, errNotFound("no channel account manager configured")
		}
		if err := deps.ChannelAccts.Update(ctx, rec); err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register(protocol.MethodChannelInstancesDelete, protocol.ScopeWrite, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			ChannelType string `json:"channelType"`
			AccountID   string `json:"accountId"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.ChannelAccts == nil {
			return nil, errNotFound("no channel account manager configured")
		}
		if err := deps.ChannelAccts.Remove(ctx, p.ChannelType, p.AccountID); err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"ok": true}, nil
	})
}
