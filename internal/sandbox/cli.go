package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const containerWorkspacePath = "/workspace"

// containerManager is the Manager backing live sandbox mode, keyed by
// scope (session/agent/shared). It drives container lifecycle through the
// backend CLI (docker, podman, or container) rather than a daemon SDK,
// mirroring how the reference browser-container launcher manages its own
// sandboxed processes.
type containerManager struct {
	cfg     Config
	backend Backend

	mu        sync.Mutex
	sandboxes map[string]*managedSandbox
}

type managedSandbox struct {
	name       string
	backend    Backend
	createdAt  time.Time
	lastUsedAt time.Time
	ready      bool
	cfg        Config
}

func (m *containerManager) Get(ctx context.Context, key, workingDir string) (Sandbox, error) {
	if m.cfg.Mode == ModeOff {
		return nil, ErrSandboxDisabled
	}

	name := DeriveContainerName("moltis-sandbox", m.cfg.Scope, key)

	m.mu.Lock()
	sb, ok := m.sandboxes[name]
	if !ok {
		sb = &managedSandbox{name: name, backend: m.backend, cfg: m.cfg, createdAt: time.Now()}
		m.sandboxes[name] = sb
	}
	m.mu.Unlock()

	if err := sb.ensureReady(ctx, workingDir); err != nil {
		return nil, err
	}
	sb.lastUsedAt = time.Now()
	return sb, nil
}

func (m *containerManager) Prune(ctx context.Context) (int, error) {
	m.mu.Lock()
	var stale []*managedSandbox
	for name, sb := range m.sandboxes {
		if idleSince(sb.lastUsedAt, m.cfg.IdleHours) || overAge(sb.createdAt, m.cfg.MaxAgeDays) {
			stale = append(stale, sb)
			delete(m.sandboxes, name)
		}
	}
	m.mu.Unlock()

	for _, sb := range stale {
		if err := sb.Stop(ctx); err != nil {
			slog.Warn("sandbox prune: stop failed", "container", sb.name, "error", err)
		}
	}
	return len(stale), nil
}

func (m *containerManager) Close(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*managedSandbox, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		all = append(all, sb)
	}
	m.sandboxes = make(map[string]*managedSandbox)
	m.mu.Unlock()

	var firstErr error
	for _, sb := range all {
		if err := sb.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ensureReady is idempotent: it reuses a running container with the
// expected name, restarts one that exists but is stopped, and otherwise
// creates a fresh one.
func (sb *managedSandbox) ensureReady(ctx context.Context, workingDir string) error {
	if sb.ready {
		return nil
	}

	state, err := sb.inspectState(ctx)
	switch {
	case err != nil:
		if createErr := sb.create(ctx, workingDir); createErr != nil {
			return createErr
		}
	case state == "running":
		// already up, nothing to do
	default:
		if startErr := sb.runCLI(ctx, "start", sb.name); startErr != nil {
			return fmt.Errorf("sandbox: restart %s: %w", sb.name, startErr)
		}
	}

	if sb.cfg.SetupCommand != "" {
		if _, err := sb.Exec(ctx, []string{"sh", "-c", sb.cfg.SetupCommand}, containerWorkspacePath); err != nil {
			return fmt.Errorf("sandbox: setup command failed: %w", err)
		}
	}

	sb.ready = true
	return nil
}

func (sb *managedSandbox) inspectState(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, sb.backend.cli(), "inspect", "-f", "{{.State.Status}}", sb.name).Output()
	if err != nil {
		return "", fmt.Errorf("sandbox: container %s not found: %w", sb.name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (sb *managedSandbox) create(ctx context.Context, workingDir string) error {
	args := []string{
		"run", "-d", "--rm",
		"--name", sb.name,
		"--memory", fmt.Sprintf("%dm", sb.cfg.MemoryMB),
		"--cpus", strconv.FormatFloat(sb.cfg.CPUs, 'f', -1, 64),
		"--pids-limit", "256",
	}

	if sb.backend != BackendAppleContainer {
		args = append(args, "--cap-drop", "ALL", "--security-opt", "no-new-privileges")
	}
	if sb.cfg.ReadOnlyRoot {
		args = append(args, "--read-only")
	}
	if sb.cfg.TmpfsSizeMB > 0 {
		args = append(args, "--tmpfs", fmt.Sprintf("/tmp:size=%dm", sb.cfg.TmpfsSizeMB))
	}
	if !sb.cfg.NetworkEnabled {
		args = append(args, "--network", "none")
	}
	if sb.cfg.User != "" {
		args = append(args, "--user", sb.cfg.User)
	}
	for k, v := range sb.cfg.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}

	switch sb.cfg.WorkspaceAccess {
	case AccessRO:
		args = append(args, "-v", fmt.Sprintf("%s:%s:ro", workingDir, containerWorkspacePath))
	case AccessRW:
		args = append(args, "-v", fmt.Sprintf("%s:%s:rw", workingDir, containerWorkspacePath))
	case AccessNone:
		// no bind mount
	}

	args = append(args, sb.cfg.Image, "sleep", "infinity")

	if err := sb.runCLI(ctx, args...); err != nil {
		return fmt.Errorf("sandbox: create %s: %w", sb.name, err)
	}
	return nil
}

func (sb *managedSandbox) ID() string { return sb.name }

func (sb *managedSandbox) Exec(ctx context.Context, argv []string, cwd string) (ExecResult, error) {
	args := []string{"exec", "-w", cwd, sb.name}
	args = append(args, argv...)

	cmd := exec.CommandContext(ctx, sb.backend.cli(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := stdout.String()
	errOut := stderr.String()
	limit := sb.cfg.MaxOutputBytes
	if limit > 0 {
		out = truncateBytes(out, limit)
		errOut = truncateBytes(errOut, limit)
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("sandbox: exec: %w", runErr)
		}
	}

	return ExecResult{Stdout: out, Stderr: errOut, ExitCode: exitCode}, nil
}

func (sb *managedSandbox) Stop(ctx context.Context) error {
	if err := sb.runCLI(ctx, "stop", sb.name); err != nil {
		slog.Debug("sandbox stop failed (may already be gone)", "container", sb.name, "error", err)
	}
	if sb.backend == BackendAppleContainer {
		_ = sb.runCLI(ctx, "rm", sb.name)
	}
	sb.ready = false
	return nil
}

func (sb *managedSandbox) runCLI(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, sb.backend.cli(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", sb.backend.cli(), strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n...(truncated)"
}
