package protocol

// RPC method name constants, grouped by the subsystem that serves them.

// System / handshake.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"
	MethodStatus  = "status"
)

// Chat (outbound layer, §4.4) and sessions.
const (
	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"
	MethodChatAbort   = "chat.abort"

	MethodSessionsList    = "sessions.list"
	MethodSessionsPreview = "sessions.preview"
	MethodSessionsDelete  = "sessions.delete"
)

// Channel management (§4.5, §6.2).
const (
	MethodChannelsList           = "channels.list"
	MethodChannelsStatus         = "channels.status"
	MethodChannelsToggle         = "channels.toggle"
	MethodChannelInstancesList   = "channels.instances.list"
	MethodChannelInstancesGet    = "channels.instances.get"
	MethodChannelInstancesCreate = "channels.instances.create"
	MethodChannelInstancesUpdate = "channels.instances.update"
	MethodChannelInstancesDelete = "channels.instances.delete"
)

// Device pairing / OTP operator surface (§4.2, §3.6).
const (
	MethodPairingRequest = "device.pair.request"
	MethodPairingApprove = "device.pair.approve"
	MethodPairingList    = "device.pair.list"
	MethodPairingRevoke  = "device.pair.revoke"

	// MethodOtpRevoke cancels an outstanding channel-DM self-approval
	// challenge (see internal/access.OTPManager), e.g. when an operator
	// spots a misdirected challenge before the sender can complete it.
	MethodOtpRevoke = "otp.revoke"
)

// Exec approvals (§4.11).
const (
	MethodApprovalsList    = "exec.approval.list"
	MethodApprovalsApprove = "exec.approval.approve"
	MethodApprovalsDeny    = "exec.approval.deny"
)

// Sandbox router (§4.7).
const (
	MethodSandboxStatus  = "sandbox.status"
	MethodSandboxRestart = "sandbox.restart"
	MethodSandboxStop    = "sandbox.stop"
)

// Browser container (§4.7).
const (
	MethodBrowserPairingStatus = "browser.pairing.status"
	MethodBrowserAct           = "browser.act"
	MethodBrowserSnapshot      = "browser.snapshot"
	MethodBrowserScreenshot    = "browser.screenshot"
)

// Network audit proxy / domain approvals (§4.9, §4.11, SPEC_FULL C.4-C.5).
const (
	MethodDomainApprovalApprove = "net.domains.approve"
	MethodDomainApprovalDeny    = "net.domains.deny"
	MethodDomainsList           = "net.domains.list"
	MethodDomainsTrust          = "net.domains.trust"
	MethodDomainsUntrust        = "net.domains.untrust"
	MethodAuditQuery            = "net.audit.query"
	MethodAuditStats            = "net.audit.stats"
)

// Cross-session coordination: task lists, sub-agents, session messaging (§4.10).
const (
	MethodTaskListCreate = "tasks.create"
	MethodTaskListList   = "tasks.list"
	MethodTaskListGet    = "tasks.get"
	MethodTaskListUpdate = "tasks.update"
	MethodTaskListClaim  = "tasks.claim"

	MethodSubAgentSpawn = "subagent.spawn"

	MethodSessionsMsgList    = "sessions.messages.list"
	MethodSessionsMsgHistory = "sessions.messages.history"
	MethodSessionsMsgSend    = "sessions.messages.send"
)

const MethodHeartbeat = "heartbeat"
