// Package sandbox routes tool execution into per-session/per-agent/shared
// containers, deriving a deterministic sandbox id, selecting a container
// backend (Docker, Podman, or AppleContainer) in platform-appropriate
// order, and ensuring the target container is ready idempotently.
//
// Grounded on internal/config.Config.Sandbox/ToSandboxConfig (the exact
// config surface this package's Config mirrors) and SPEC_FULL.md §4.7.
package sandbox

import "fmt"

// Mode controls which tool executions get sandboxed.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeNonMain Mode = "non-main"
	ModeAll     Mode = "all"
)

// Access controls how much of the host workspace a sandbox can see.
type Access string

const (
	AccessNone Access = "none"
	AccessRO   Access = "ro"
	AccessRW   Access = "rw"
)

// Scope controls container reuse granularity.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeAgent   Scope = "agent"
	ScopeShared  Scope = "shared"
)

// Backend identifies a container runtime driver.
type Backend string

const (
	BackendDocker        Backend = "docker"
	BackendPodman        Backend = "podman"
	BackendAppleContainer Backend = "apple-container"
)

// Config is the resolved sandbox configuration for one gateway instance.
type Config struct {
	Mode            Mode
	Image           string
	WorkspaceAccess Access
	Scope           Scope
	MemoryMB        int
	CPUs            float64
	TimeoutSec      int
	NetworkEnabled  bool
	ReadOnlyRoot    bool
	SetupCommand    string
	Env             map[string]string

	User           string
	TmpfsSizeMB    int
	MaxOutputBytes int

	IdleHours        int
	MaxAgeDays       int
	PruneIntervalMin int

	// Backend, when empty, is resolved at runtime via DetectBackend using
	// the platform-appropriate driver preference order.
	Backend Backend
}

// DefaultConfig returns the configuration used when no sandbox block is
// present at all, matching the teacher's documented field defaults.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeOff,
		Image:           "moltis-sandbox:bookworm-slim",
		WorkspaceAccess: AccessRW,
		Scope:           ScopeSession,
		MemoryMB:        512,
		CPUs:            1.0,
		TimeoutSec:      300,
		NetworkEnabled:  false,
		ReadOnlyRoot:    true,
		MaxOutputBytes:  1 << 20,
		IdleHours:       24,
		MaxAgeDays:      7,
	}
}

// Validate reports a configuration error, if any.
func (c Config) Validate() error {
	if c.MemoryMB < 0 {
		return fmt.Errorf("sandbox: negative memory_mb")
	}
	if c.CPUs < 0 {
		return fmt.Errorf("sandbox: negative cpus")
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox: timeout_sec must be positive")
	}
	return nil
}
