package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsdzhang/moltis/internal/approval"
)

// ExecSecurity is the baseline posture for the exec tool: what happens to a
// command that doesn't match the allowlist.
type ExecSecurity string

const (
	ExecSecurityDeny      ExecSecurity = "deny"      // every command is denied outright
	ExecSecurityAllowlist ExecSecurity = "allowlist"  // only allowlisted commands run
	ExecSecurityFull      ExecSecurity = "full"       // any command runs, subject to Ask mode
)

// ExecAskMode controls when a command that would otherwise be allowed is
// instead routed to an operator approval prompt.
type ExecAskMode string

const (
	ExecAskOff    ExecAskMode = "off"     // never prompt
	ExecAskOnMiss ExecAskMode = "on-miss" // prompt only for commands not on the allowlist
	ExecAskAlways ExecAskMode = "always"  // prompt for every command
)

// ExecApprovalConfig configures an ExecApprovalManager.
type ExecApprovalConfig struct {
	Security  ExecSecurity
	Ask       ExecAskMode
	Allowlist []string // glob patterns matched against the full command string
}

// DefaultExecApprovalConfig mirrors the exec tool's out-of-the-box posture:
// full execution capability, deny-pattern screening only, no prompting.
func DefaultExecApprovalConfig() ExecApprovalConfig {
	return ExecApprovalConfig{Security: ExecSecurityFull, Ask: ExecAskOff}
}

// ApprovalDecision is the operator's verdict on a prompted command.
type ApprovalDecision int

const (
	ApprovalDeny ApprovalDecision = iota
	ApprovalAllow
)

// ApprovalAware is implemented by tools that can have an approval manager
// wired in after construction (exec_tool, grounded on _examples'
// exec-approval.ts pipeline).
type ApprovalAware interface {
	SetApprovalManager(mgr *ExecApprovalManager, agentID string)
}

// ExecApprovalManager gates exec tool calls against an allowlist and,
// depending on Ask mode, routes unmatched or all commands through an
// operator approval request/wait/resolve cycle.
type ExecApprovalManager struct {
	cfg      ExecApprovalConfig
	patterns []string
	requests *approval.Manager
	seq      int64

	mu      sync.Mutex
	pending map[string]PendingExecApproval
}

// PendingExecApproval describes one outstanding prompted command, for the
// operator-facing exec.approval.list RPC method.
type PendingExecApproval struct {
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	AgentID     string    `json:"agentId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewExecApprovalManager builds a manager from cfg.
func NewExecApprovalManager(cfg ExecApprovalConfig) *ExecApprovalManager {
	return &ExecApprovalManager{
		cfg:      cfg,
		patterns: cfg.Allowlist,
		requests: approval.NewManager(),
		pending:  make(map[string]PendingExecApproval),
	}
}

// ListPending returns a snapshot of all currently outstanding approval
// requests, oldest first is not guaranteed (map iteration order).
func (m *ExecApprovalManager) ListPending() []PendingExecApproval {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingExecApproval, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p)
	}
	return out
}

func (m *ExecApprovalManager) matchesAllowlist(command string) bool {
	command = strings.TrimSpace(command)
	for _, pattern := range m.patterns {
		if ok, _ := filepath.Match(pattern, command); ok {
			return true
		}
		// Also match against just the first token (the binary name), so an
		// allowlist entry like "git" covers "git status", "git log", etc.
		if fields := strings.Fields(command); len(fields) > 0 {
			if ok, _ := filepath.Match(pattern, fields[0]); ok {
				return true
			}
		}
	}
	return false
}

// CheckCommand classifies command against the configured security posture
// and returns one of "deny", "ask", "allow".
func (m *ExecApprovalManager) CheckCommand(command string) string {
	switch m.cfg.Security {
	case ExecSecurityDeny:
		return "deny"
	case ExecSecurityAllowlist:
		if m.matchesAllowlist(command) {
			if m.cfg.Ask == ExecAskAlways {
				return "ask"
			}
			return "allow"
		}
		if m.cfg.Ask != ExecAskOff {
			return "ask"
		}
		return "deny"
	default: // ExecSecurityFull
		switch m.cfg.Ask {
		case ExecAskAlways:
			return "ask"
		case ExecAskOnMiss:
			if !m.matchesAllowlist(command) {
				return "ask"
			}
		}
		return "allow"
	}
}

// RequestApproval registers a pending approval for command and blocks until
// Resolve is called for its request id, the timeout elapses, or ctx (here,
// context.Background with a derived deadline) is cancelled. A timeout
// defaults to deny: an unanswered prompt should never fail open.
func (m *ExecApprovalManager) RequestApproval(command, agentID string, timeout time.Duration) (ApprovalDecision, error) {
	id := fmt.Sprintf("exec-%s-%d", agentID, atomic.AddInt64(&m.seq, 1))
	if err := m.requests.Request(id); err != nil {
		return ApprovalDeny, err
	}

	m.mu.Lock()
	m.pending[id] = PendingExecApproval{ID: id, Command: command, AgentID: agentID, RequestedAt: time.Now()}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	decision, err := m.requests.Wait(ctx, id)
	if err != nil {
		return ApprovalDeny, nil
	}
	if decision.Approved {
		return ApprovalAllow, nil
	}
	return ApprovalDeny, nil
}

// Resolve delivers an operator's decision for a pending request id (wired to
// a gateway RPC handler for the approval prompt reply).
func (m *ExecApprovalManager) Resolve(id string, approved bool, reason string) bool {
	return m.requests.Resolve(id, approval.Decision{Approved: approved, Reason: reason})
}
