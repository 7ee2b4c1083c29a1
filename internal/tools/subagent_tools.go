package tools

import (
	"context"
)

const ctxSpawnDepth toolContextKey = "tool_spawn_depth"

// WithSpawnDepth tags ctx with the current subagent nesting depth, so a
// subagent's own tool registry reports the right depth to Spawn/RunSync
// (and SubagentManager can enforce MaxSpawnDepth across nested spawns).
func WithSpawnDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, ctxSpawnDepth, depth)
}

func spawnDepthFromCtx(ctx context.Context) int {
	v, _ := ctx.Value(ctxSpawnDepth).(int)
	return v
}

// SpawnTool lets an agent kick off a background subagent for a task it
// doesn't need to block on; the result is announced back into the parent's
// session once the subagent finishes.
type SpawnTool struct {
	mgr *SubagentManager
}

func NewSpawnTool(mgr *SubagentManager) *SpawnTool { return &SpawnTool{mgr: mgr} }

func (t *SpawnTool) Name() string        { return "spawn" }
func (t *SpawnTool) Description() string { return "Spawn an asynchronous background subagent to work on a task while you continue." }
func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task":  map[string]interface{}{"type": "string", "description": "the task for the subagent to perform"},
			"label": map[string]interface{}{"type": "string", "description": "short human-readable label for this task"},
			"model": map[string]interface{}{"type": "string", "description": "optional model override for the subagent"},
		},
		"required": []interface{}{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	task, _ := args["task"].(string)
	if task == "" {
		return ErrorResult("spawn: task is required")
	}
	label, _ := args["label"].(string)
	model, _ := args["model"].(string)

	parentID := ToolAgentKeyFromCtx(ctx)
	depth := spawnDepthFromCtx(ctx)
	channel := ToolChannelFromCtx(ctx)
	chatID := ToolChatIDFromCtx(ctx)
	peerKind := ToolPeerKindFromCtx(ctx)
	callback := ToolAsyncCBFromCtx(ctx)

	msg, err := t.mgr.Spawn(ctx, parentID, depth, task, label, model, channel, chatID, peerKind, callback)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return AsyncResult(msg)
}

// SubagentTool runs a subagent synchronously and returns its result inline,
// for when the caller needs the answer before continuing.
type SubagentTool struct {
	mgr *SubagentManager
}

func NewSubagentTool(mgr *SubagentManager) *SubagentTool { return &SubagentTool{mgr: mgr} }

func (t *SubagentTool) Name() string        { return "subagent" }
func (t *SubagentTool) Description() string { return "Run a subagent synchronously and wait for its result." }
func (t *SubagentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task":  map[string]interface{}{"type": "string", "description": "the task for the subagent to perform"},
			"label": map[string]interface{}{"type": "string", "description": "short human-readable label for this task"},
		},
		"required": []interface{}{"task"},
	}
}

func (t *SubagentTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	task, _ := args["task"].(string)
	if task == "" {
		return ErrorResult("subagent: task is required")
	}
	label, _ := args["label"].(string)

	parentID := ToolAgentKeyFromCtx(ctx)
	depth := spawnDepthFromCtx(ctx)
	channel := ToolChannelFromCtx(ctx)
	chatID := ToolChatIDFromCtx(ctx)

	result, iterations, err := t.mgr.RunSync(ctx, parentID, depth, task, label, channel, chatID)
	if err != nil {
		return ErrorResult(err.Error())
	}
	_ = iterations
	return NewResult(result)
}
