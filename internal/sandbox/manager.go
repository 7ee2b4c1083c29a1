package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrSandboxDisabled is returned by Manager.Get when the configured mode
// means the caller should execute on the host instead of in a container.
var ErrSandboxDisabled = errors.New("sandbox: disabled")

// ExecResult is the outcome of running one command inside a sandbox.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox is one live container a tool call can execute commands in.
type Sandbox interface {
	// ID returns the backend container id or name.
	ID() string
	// Exec runs argv inside the container, rooted at cwd, truncating
	// captured stdout/stderr at the manager's MaxOutputBytes.
	Exec(ctx context.Context, argv []string, cwd string) (ExecResult, error)
	// Stop tears the container down. Idempotent.
	Stop(ctx context.Context) error
}

// Manager hands out Sandboxes keyed by session/agent/shared scope,
// reusing an existing container when one is already running for the key
// and lazily creating one otherwise.
type Manager interface {
	// Get returns the sandbox for key, creating and readying it on first
	// use. workingDir is the host directory mounted into the container
	// per Config.WorkspaceAccess. Returns ErrSandboxDisabled when
	// Config.Mode is ModeOff.
	Get(ctx context.Context, key, workingDir string) (Sandbox, error)
	// Prune stops and removes sandboxes idle past Config.IdleHours or
	// older than Config.MaxAgeDays, returning how many were removed.
	Prune(ctx context.Context) (int, error)
	// Close stops every sandbox the manager currently owns.
	Close(ctx context.Context) error
}

// NewManager builds the Manager appropriate for cfg.Mode, auto-detecting
// a container backend when cfg.Backend is unset. Returns a no-op manager
// (whose Get always returns ErrSandboxDisabled) when Mode is ModeOff.
func NewManager(cfg Config) (Manager, error) {
	if cfg.Mode == ModeOff {
		return &disabledManager{}, nil
	}

	backend := cfg.Backend
	if backend == "" {
		detected, err := DetectBackend()
		if err != nil {
			return nil, err
		}
		backend = detected
	}

	return &containerManager{
		cfg:      cfg,
		backend:  backend,
		sandboxes: make(map[string]*managedSandbox),
	}, nil
}

type disabledManager struct{}

func (d *disabledManager) Get(ctx context.Context, key, workingDir string) (Sandbox, error) {
	return nil, ErrSandboxDisabled
}
func (d *disabledManager) Prune(ctx context.Context) (int, error) { return 0, nil }
func (d *disabledManager) Close(ctx context.Context) error        { return nil }

// DeriveContainerName builds a deterministic, collision-resistant
// container name for a scope key, so restarting the gateway reattaches to
// the same container instead of leaking a new one every run.
func DeriveContainerName(prefix string, scope Scope, key string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", scope, key)))
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(sum[:])[:16])
}

// scopeKey narrows an arbitrary session/agent identifier down to the
// value that determines container reuse, per Config.Scope.
func scopeKey(scope Scope, sessionID, agentID string) string {
	switch scope {
	case ScopeAgent:
		return agentID
	case ScopeShared:
		return "shared"
	default:
		return sessionID
	}
}

// idleSince and overAge are used by Prune implementations to decide
// eviction; kept here so both the docker and CLI managers share the
// exact same policy.
func idleSince(lastUsed time.Time, idleHours int) bool {
	if idleHours <= 0 {
		return false
	}
	return time.Since(lastUsed) > time.Duration(idleHours)*time.Hour
}

func overAge(createdAt time.Time, maxAgeDays int) bool {
	if maxAgeDays <= 0 {
		return false
	}
	return time.Since(createdAt) > time.Duration(maxAgeDays)*24*time.Hour
}
