package bootstrap

// Standard workspace file names seeded into every agent's workspace and
// surfaced back to the agent as context on each request.
const (
	AgentsFile    = "AGENTS.md"
	SoulFile      = "SOUL.md"
	ToolsFile     = "TOOLS.md"
	IdentityFile  = "IDENTITY.md"
	UserFile      = "USER.md"
	HeartbeatFile = "HEARTBEAT.md"

	// BootstrapFile is seeded only into brand-new workspaces and is meant
	// to be cleared by the agent (or auto-cleaned) within its first few turns.
	BootstrapFile = "BOOTSTRAP.md"
)
