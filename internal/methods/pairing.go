package methods

import (
	"context"

	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

func registerPairing(d *gatewaydispatch.Dispatcher, deps Deps) {
	d.Register(protocol.MethodPairingRequest, "", func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			UserID  string `json:"userId"`
			Channel string `json:"channel"`
			ChatID  string `json:"chatId"`
			Scope   string `json:"scope"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Pairing == nil {
			return nil, errNotFound("no pairing store configured")
		}
		code, err := deps.Pairing.RequestPairing(p.UserID, p.Channel, p.ChatID, p.Scope)
		if err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"code": code}, nil
	})

	d.Register(protocol.MethodPairingApprove, protocol.ScopePairing, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			Code string `json:"code"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Pairing == nil {
			return nil, errNotFound("no pairing store configured")
		}
		rec, err := deps.Pairing.Approve(p.Code)
		if err != nil {
			return nil, errInternal(err)
		}
		return rec, nil
	})

	d.Register(protocol.MethodPairingList, protocol.ScopePairing, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		if deps.Pairing == nil {
			return map[string]any{"pairings": nil}, nil
		}
		records, err := deps.Pairing.List()
		if err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"pairings": records}, nil
	})

	d.Register(protocol.MethodPairingRevoke, protocol.ScopePairing, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			UserID  string `json:"userId"`
			Channel string `json:"channel"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.Pairing == nil {
			return nil, errNotFound("no pairing store configured")
		}
		if err := deps.Pairing.Revoke(p.UserID, p.Channel); err != nil {
			return nil, errInternal(err)
		}
		return map[string]any{"revoked": true}, nil
	})

	// otp.revoke cancels a channel DM's outstanding self-approval challenge
	// (§4.2) before the sender completes it, e.g. when an operator sees the
	// OtpChallenge event and decides the sender shouldn't be self-approving.
	d.Register(protocol.MethodOtpRevoke, protocol.ScopePairing, func(ctx context.Context, params any) (any, *protocol.ErrorShape) {
		var p struct {
			Channel  string `json:"channel"`
			SenderID string `json:"senderId"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, errInvalid(err)
		}
		if deps.OTP == nil {
			return nil, errNotFound("no otp manager configured")
		}
		deps.OTP.Revoke(p.Channel + "|" + p.SenderID)
		return map[string]any{"revoked": true}, nil
	})
}
