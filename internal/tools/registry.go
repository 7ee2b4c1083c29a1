package tools

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jsdzhang/moltis/internal/providers"
)

// Tool is the interface every registered tool implements. Parameters follows
// JSON Schema shape so ToProviderDef can hand it straight to a provider's
// function-calling API without translation.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// AsyncCallback is invoked when a tool that returned an AsyncResult later
// completes (e.g. a spawned subagent finishing in the background).
type AsyncCallback func(ctx context.Context, result *Result)

// Registry holds the tools available to an agent loop. A loop owns one
// Registry built at startup from its config (profile, workspace, sandbox);
// PolicyEngine filters Registry.List() down per request.
type Registry struct {
	mu               sync.RWMutex
	tools            map[string]Tool
	rateLimiter      *ToolRateLimiter
	scrubCredentials bool
}

// NewRegistry creates an empty registry with credential scrubbing enabled,
// matching the config default (ScrubCredentials defaults to true).
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), scrubCredentials: true}
}

// Register adds or replaces a tool under its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool, used for disabling builtin tools or tearing
// down an MCP server's tools when it disconnects.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ProviderDefs returns every registered tool's schema as provider tool
// definitions, unfiltered — callers that need policy filtering should go
// through PolicyEngine.FilterTools instead.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// ToProviderDef converts a Tool into the wire-format schema sent to an LLM's
// function-calling API.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// SetRateLimiter installs a per-session, per-tool rate limiter. nil disables
// rate limiting (the zero value already does, this is for symmetry with
// SetScrubbing).
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = rl
}

// SetScrubbing toggles credential redaction of tool output. Disabled only by
// the CLI standalone path, which trusts its own terminal output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrubCredentials = enabled
}

// Execute runs a tool by name with no channel/session context attached.
// Used by subagents, which run outside any one channel's request scope.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult("unknown tool: " + name)
	}

	result := tool.Execute(ctx, args)

	r.mu.RLock()
	scrub := r.scrubCredentials
	r.mu.RUnlock()
	if scrub {
		result.ForLLM = ScrubSecrets(result.ForLLM)
		if result.ForUser != "" {
			result.ForUser = ScrubSecrets(result.ForUser)
		}
	}
	return result
}

// ExecuteWithContext runs a tool with request-scoped metadata (channel,
// chat, peer kind, session) attached to ctx, and applies the per-session
// rate limit before dispatching. asyncCB, if non-nil, is reachable by the
// tool via ToolAsyncCBFromCtx for tools that complete work in the background
// (spawn) and need to report back later.
func (r *Registry) ExecuteWithContext(
	ctx context.Context,
	name string,
	args map[string]interface{},
	channel, chatID, peerKind, sessionKey string,
	asyncCB AsyncCallback,
) *Result {
	r.mu.RLock()
	limiter := r.rateLimiter
	r.mu.RUnlock()

	if limiter != nil && !limiter.Allow(sessionKey, name) {
		return ErrorResult("rate limit exceeded for tool " + name + "; try again later")
	}

	ctx = WithToolChannel(ctx, channel)
	ctx = WithToolChatID(ctx, chatID)
	ctx = WithToolPeerKind(ctx, peerKind)
	if asyncCB != nil {
		ctx = WithToolAsyncCB(ctx, asyncCB)
	}

	return r.Execute(ctx, name, args)
}

// ToolRateLimiter caps tool executions per session within a rolling hour,
// matching the execApproval-adjacent rate_limit_per_hour config knob.
type ToolRateLimiter struct {
	mu        sync.Mutex
	perHour   int
	calls     map[string][]time.Time // sessionKey -> call timestamps
}

// NewToolRateLimiter creates a limiter allowing perHour calls (any tool) per
// session per rolling hour. perHour <= 0 disables limiting (Allow always
// returns true).
func NewToolRateLimiter(perHour int) *ToolRateLimiter {
	return &ToolRateLimiter{perHour: perHour, calls: make(map[string][]time.Time)}
}

// Allow records a call attempt for sessionKey and reports whether it's
// within the limit. toolName is accepted for future per-tool limits but the
// current policy is a single budget per session.
func (rl *ToolRateLimiter) Allow(sessionKey, toolName string) bool {
	if rl == nil || rl.perHour <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Hour)

	history := rl.calls[sessionKey]
	kept := history[:0]
	for _, t := range history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.perHour {
		rl.calls[sessionKey] = kept
		return false
	}

	rl.calls[sessionKey] = append(kept, now)
	return true
}
