package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/providers"
)

// MemoryFlushSettings resolves the pre-compaction memory-flush knobs from
// config, filling in defaults for anything left unset.
type MemoryFlushSettings struct {
	Enabled             bool
	SoftThresholdTokens int
	Prompt              string
	SystemPrompt        string
}

const (
	defaultMemoryFlushSoftThreshold = 4000
	defaultMemoryFlushPrompt        = "Before this conversation is compacted, write down any durable facts worth remembering " +
		"(about the user, ongoing work, or decisions made). Reply with the facts only, one per line, or NO_REPLY if there's nothing worth keeping."
	defaultMemoryFlushSystemPrompt = "You are extracting durable memory from a conversation that's about to be summarized. Be terse and factual."
)

// ResolveMemoryFlushSettings fills in defaults for any unset memory-flush
// config fields. A nil cfg or nil cfg.MemoryFlush yields the defaults with
// Enabled=true.
func ResolveMemoryFlushSettings(cfg *config.CompactionConfig) MemoryFlushSettings {
	s := MemoryFlushSettings{
		Enabled:             true,
		SoftThresholdTokens: defaultMemoryFlushSoftThreshold,
		Prompt:              defaultMemoryFlushPrompt,
		SystemPrompt:        defaultMemoryFlushSystemPrompt,
	}
	if cfg == nil || cfg.MemoryFlush == nil {
		return s
	}
	mf := cfg.MemoryFlush
	if mf.Enabled != nil {
		s.Enabled = *mf.Enabled
	}
	if mf.SoftThresholdTokens > 0 {
		s.SoftThresholdTokens = mf.SoftThresholdTokens
	}
	if mf.Prompt != "" {
		s.Prompt = mf.Prompt
	}
	if mf.SystemPrompt != "" {
		s.SystemPrompt = mf.SystemPrompt
	}
	return s
}

// shouldRunMemoryFlush reports whether a memory-flush turn should run before
// compaction: flushing is enabled for this agent, the session hasn't already
// been flushed for the current compaction cycle, and estimated usage is
// within SoftThresholdTokens of the context window.
func (l *Loop) shouldRunMemoryFlush(sessionKey string, tokenEstimate int, settings MemoryFlushSettings) bool {
	if !settings.Enabled || !l.hasMemory {
		return false
	}
	compactionCount := l.sessions.GetCompactionCount(sessionKey)
	if l.sessions.GetMemoryFlushCompactionCount(sessionKey) > compactionCount {
		return false
	}
	return l.contextWindow-tokenEstimate <= settings.SoftThresholdTokens
}

// runMemoryFlush asks the model, in a throwaway turn, to write down anything
// worth remembering before its history gets summarized away, then appends
// the result to MEMORY.md in the agent's workspace.
func (l *Loop) runMemoryFlush(ctx context.Context, sessionKey string, settings MemoryFlushSettings) {
	resp, err := l.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: settings.SystemPrompt},
			{Role: "user", Content: settings.Prompt},
		},
		Model:   l.model,
		Options: map[string]interface{}{"max_tokens": 512, "temperature": 0.2},
	})
	if err != nil {
		slog.Warn("memory flush failed", "session", sessionKey, "error", err)
		return
	}

	l.sessions.SetMemoryFlushDone(sessionKey)

	content := SanitizeAssistantContent(resp.Content)
	if content == "" || IsSilentReply(content) || l.workspace == "" {
		return
	}
	if err := appendMemoryNote(l.workspace, content); err != nil {
		slog.Warn("memory flush: failed to write MEMORY.md", "error", err)
	}
}

// appendMemoryNote appends a timestamped block to MEMORY.md under workspace,
// creating the file if it doesn't exist yet.
func appendMemoryNote(workspace, note string) error {
	f, err := os.OpenFile(filepath.Join(workspace, "MEMORY.md"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "\n## %s\n%s\n", time.Now().UTC().Format(time.RFC3339), note)
	return err
}
