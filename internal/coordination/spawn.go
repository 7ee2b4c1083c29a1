package coordination

import (
	"context"
	"fmt"
)

// MaxSpawnDepth bounds how many levels deep a sub-agent may itself spawn
// further sub-agents, preventing runaway recursive delegation.
const MaxSpawnDepth = 3

// SpawnRequest describes one sub-agent spawn call.
type SpawnRequest struct {
	ParentSessionID string
	Depth           int
	Task            string
	// ToolAllow/ToolDeny implement the delegate-only fixed tool set: a
	// spawned sub-agent only ever sees tools present in ToolAllow (when
	// non-empty) minus anything in ToolDeny.
	ToolAllow []string
	ToolDeny  []string
	Model     string
}

// RunFunc executes one sub-agent task to completion and returns its final
// text output; the caller (agent runtime) supplies the concrete
// implementation wired to the LLM loop.
type RunFunc func(ctx context.Context, req SpawnRequest) (string, error)

// Spawner enforces MaxSpawnDepth before handing a request to run.
type Spawner struct {
	run RunFunc
}

// NewSpawner builds a Spawner around the given execution callback.
func NewSpawner(run RunFunc) *Spawner {
	return &Spawner{run: run}
}

// Spawn runs req.Task as a new sub-agent one level deeper than its parent,
// refusing the call outright once MaxSpawnDepth is reached.
func (s *Spawner) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	if req.Depth >= MaxSpawnDepth {
		return "", fmt.Errorf("maximum sub-agent nesting depth (%d) exceeded", MaxSpawnDepth)
	}
	childReq := req
	childReq.Depth = req.Depth + 1
	return s.run(ctx, childReq)
}

// ResolveAllowedTools applies ToolAllow/ToolDeny to the full tool set a
// session would otherwise see, producing the fixed set a delegated
// sub-agent is permitted to call.
func ResolveAllowedTools(all []string, allow, deny []string) []string {
	allowSet := toSet(allow)
	denySet := toSet(deny)

	var out []string
	for _, name := range all {
		if len(allowSet) > 0 && !allowSet[name] {
			continue
		}
		if denySet[name] {
			continue
		}
		out = append(out, name)
	}
	return out
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}
