// Package heartbeat fires a periodic prompt into an agent's session and
// forwards whatever it replies with back out to a channel, so a personal
// agent can check in on overdue work without the owner asking first.
//
// Grounded on internal/coordination's shared task list as the thing worth
// checking in on, and on agent.Loop.Run/IsSilentReply (internal/agent) for
// the same run-then-suppress-empty-replies shape chat.send uses
// (internal/methods/chat.go).
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/jsdzhang/moltis/internal/agent"
	"github.com/jsdzhang/moltis/internal/bus"
)

// Runner wakes on a schedule, runs Prompt through an agent session, and
// publishes a non-empty reply to Target/To.
type Runner struct {
	agents  *agent.Router
	msgBus  *bus.MessageBus
	agentID string

	sessionKey  string
	prompt      string
	target      string
	to          string
	ackMaxChars int

	due   func(time.Time) bool
	tick  time.Duration
	stopC chan struct{}
}

// NewCron builds a Runner firing whenever expr (a standard 5-field cron
// expression) is due, checked once a minute.
func NewCron(expr string, agents *agent.Router, msgBus *bus.MessageBus, agentID, sessionKey, prompt, target, to string, ackMaxChars int) (*Runner, error) {
	gron := gronx.New()
	if !gron.IsValid(expr) {
		return nil, fmt.Errorf("invalid heartbeat cron expression %q", expr)
	}
	return &Runner{
		agents: agents, msgBus: msgBus, agentID: agentID,
		sessionKey: sessionKey, prompt: prompt, target: target, to: to, ackMaxChars: ackMaxChars,
		due: func(now time.Time) bool {
			isDue, err := gron.IsDue(expr, now)
			if err != nil {
				slog.Warn("heartbeat: schedule check failed", "expr", expr, "error", err)
				return false
			}
			return isDue
		},
		tick:  time.Minute,
		stopC: make(chan struct{}),
	}, nil
}

// NewInterval builds a Runner firing every d, for heartbeat configs that
// give a plain duration ("30m") instead of a cron expression.
func NewInterval(d time.Duration, agents *agent.Router, msgBus *bus.MessageBus, agentID, sessionKey, prompt, target, to string, ackMaxChars int) *Runner {
	return &Runner{
		agents: agents, msgBus: msgBus, agentID: agentID,
		sessionKey: sessionKey, prompt: prompt, target: target, to: to, ackMaxChars: ackMaxChars,
		due:   func(time.Time) bool { return true },
		tick:  d,
		stopC: make(chan struct{}),
	}
}

// Start runs the schedule loop until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Stop ends the schedule loop.
func (r *Runner) Stop() {
	close(r.stopC)
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopC:
			return
		case now := <-ticker.C:
			if r.due(now) {
				r.fire(ctx)
			}
		}
	}
}

func (r *Runner) fire(ctx context.Context) {
	loop, err := r.agents.Get(r.agentID)
	if err != nil {
		slog.Warn("heartbeat: agent not found", "agent", r.agentID, "error", err)
		return
	}

	result, err := loop.Run(ctx, agent.RunRequest{
		SessionKey: r.sessionKey,
		Message:    r.prompt,
		RunID:      fmt.Sprintf("heartbeat-%s-%d", r.agentID, time.Now().UnixNano()),
	})
	if err != nil {
		slog.Warn("heartbeat: run failed", "agent", r.agentID, "error", err)
		return
	}
	if result.Content == "" || agent.IsSilentReply(result.Content) {
		return
	}

	content := result.Content
	if r.ackMaxChars > 0 && len(content) > r.ackMaxChars {
		content = content[:r.ackMaxChars]
	}

	if r.target == "" || r.target == "none" || r.msgBus == nil {
		return
	}
	r.msgBus.PublishOutbound(bus.OutboundMessage{
		Channel: r.target,
		ChatID:  r.to,
		Content: content,
	})
}
