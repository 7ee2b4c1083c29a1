package protocol

// WebSocket event names pushed from server to client.
const (
	EventAgent             = "agent"
	EventChat              = "chat"
	EventHealth            = "health"
	EventCron              = "cron"
	EventExecApprovalReq   = "exec.approval.requested"
	EventExecApprovalRes   = "exec.approval.resolved"
	EventPresence          = "presence"
	EventTick              = "tick"
	EventShutdown          = "shutdown"
	EventDevicePairReq     = "device.pair.requested"
	EventDevicePairRes     = "device.pair.resolved"
	EventConnectChallenge  = "connect.challenge"
	EventHeartbeat         = "heartbeat"

	// Handoff between an agent and a spawned sub-agent.
	EventHandoff = "handoff"

	// Sandbox router lifecycle (§4.7).
	EventSandboxReady    = "sandbox.ready"
	EventSandboxStopped  = "sandbox.stopped"
	EventSandboxError    = "sandbox.error"

	// Browser container lifecycle (§4.7).
	EventBrowserPairing = "browser.pairing"

	// Network audit proxy (§4.9, §4.11).
	EventDomainApprovalReq = "net.domains.requested"
	EventDomainApprovalRes = "net.domains.resolved"
	EventAuditEntry        = "net.audit.entry"

	// Channel OTP self-approval (§4.2).
	EventOtpChallenge = "otp.challenge"
	EventOtpResolved  = "otp.resolved"

	// Cross-session coordination (§4.10).
	EventTaskCreated   = "tasks.created"
	EventTaskUpdated   = "tasks.updated"
	EventTaskClaimed   = "tasks.claimed"
	EventSubAgentSpawn = "subagent.spawned"
	EventSubAgentDone  = "subagent.completed"

	// Cache invalidation events (internal, not forwarded to WS clients).
	EventCacheInvalidate = "cache.invalidate"
)

// Agent event subtypes (in payload.type)
const (
	AgentEventRunStarted   = "run.started"
	AgentEventRunCompleted = "run.completed"
	AgentEventRunFailed    = "run.failed"
	AgentEventRunRetrying  = "run.retrying"
	AgentEventToolCall     = "tool.call"
	AgentEventToolResult   = "tool.result"
)

// Chat event subtypes (in payload.type)
const (
	ChatEventChunk    = "chunk"
	ChatEventMessage  = "message"
	ChatEventThinking = "thinking"
)
