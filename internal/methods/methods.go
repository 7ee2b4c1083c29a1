// Package methods registers every RPC method handler the v4 gateway
// protocol advertises (pkg/protocol/methods.go) against a
// gatewaydispatch.Dispatcher, wiring each one to the concrete subsystem
// that actually serves it: the agent router for chat, the session store
// for session history, the pairing/channel-router/access packages for
// onboarding, the coordination package for cross-session task/subagent/
// messaging, and netfilter/sandbox for the egress and execution surfaces.
//
// Grounded on _examples/vanducng-goclaw/internal/gateway/methods (referenced
// by cmd/gateway.go but absent from the retrieved tree) for the
// decode-params/call-subsystem/return-payload handler shape that every
// function below follows, and on gatewaydispatch.Dispatcher.Register's
// (method, scope, handler) signature.
package methods

import (
	"encoding/json"
	"fmt"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/agent"
	"github.com/jsdzhang/moltis/internal/channelrouter"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/coordination"
	"github.com/jsdzhang/moltis/internal/gatewaydispatch"
	"github.com/jsdzhang/moltis/internal/netfilter"
	"github.com/jsdzhang/moltis/internal/sandbox"
	"github.com/jsdzhang/moltis/internal/store"
	"github.com/jsdzhang/moltis/internal/tools"
	"github.com/jsdzhang/moltis/pkg/protocol"
)

// Deps bundles every subsystem a method handler might need. Fields left nil
// simply mean that method family is unavailable in this deployment (e.g. no
// sandbox backend); the registering function checks and skips accordingly.
type Deps struct {
	Config *config.Config

	Sessions store.SessionStore
	Pairing  store.PairingStore
	OTP      *access.OTPManager

	AgentRouter *agent.Router

	ChannelManager *channels.Manager
	ChannelRouter  *channelrouter.Router
	ChannelAccts   *channelrouter.Manager

	ExecApprovals *tools.ExecApprovalManager

	DomainApprovals *netfilter.Manager
	Audit           *netfilter.AuditBuffer

	Sandbox sandbox.Manager
	Browser *sandbox.BrowserContainer

	Tasks    *coordination.List
	Spawner  *coordination.Spawner
	Messages *coordination.MessageLog
}

// RegisterAll wires every method family onto d. Call once at startup after
// every field of deps that will ever be non-nil has been constructed.
func RegisterAll(d *gatewaydispatch.Dispatcher, deps Deps) {
	registerSystem(d, deps)
	registerChat(d, deps)
	registerChannels(d, deps)
	registerPairing(d, deps)
	registerApprovals(d, deps)
	registerSandbox(d, deps)
	registerNetfilter(d, deps)
	registerCoordination(d, deps)
}

// decodeParams re-marshals the dispatcher's already-decoded `any` params
// (itself the product of json.Unmarshal into interface{} on the request
// frame) into a concrete struct. Cheaper alternatives exist, but every
// handler needs this exactly once and the params payloads are small.
func decodeParams(params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("re-encode params: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func errInvalid(err error) *protocol.ErrorShape {
	e := protocol.NewError(protocol.ErrInvalidRequest, err.Error())
	return &e
}

func errInternal(err error) *protocol.ErrorShape {
	e := protocol.NewError(protocol.ErrInternal, err.Error())
	return &e
}

func errNotFound(msg string) *protocol.ErrorShape {
	e := protocol.NewError(protocol.ErrNotFound, msg)
	return &e
}
