package agent

import (
	"fmt"
	"strings"

	"github.com/jsdzhang/moltis/internal/bootstrap"
)

// PromptMode selects between the full system prompt built for ordinary
// conversations and the stripped-down variant used for subagent/cron
// sessions, which have no human persona to maintain.
type PromptMode int

const (
	PromptFull PromptMode = iota
	PromptMinimal
)

// SystemPromptConfig carries everything BuildSystemPrompt needs to render
// one agent's system prompt for a single request.
type SystemPromptConfig struct {
	AgentID  string
	Model    string
	Workspace string
	Channel  string
	OwnerIDs []string
	Mode     PromptMode

	ToolNames      []string
	SkillsSummary  string
	HasMemory      bool
	HasSpawn       bool
	HasSkillSearch bool
	ContextFiles   []bootstrap.ContextFile
	ExtraPrompt    string

	SandboxEnabled         bool
	SandboxContainerDir    string
	SandboxWorkspaceAccess string
}

// BuildSystemPrompt renders the system-role message prepended to every
// agent request. Full mode includes persona, context files, and
// skill/tool discovery guidance; minimal mode (subagent and cron sessions)
// keeps only identity, tools, and sandbox notes.
func BuildSystemPrompt(cfg SystemPromptConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, an AI agent running on %s.\n", cfg.AgentID, cfg.Model)
	if cfg.Workspace != "" {
		fmt.Fprintf(&b, "Your workspace is %s. Read and write files there for anything that should persist.\n", cfg.Workspace)
	}
	if cfg.Channel != "" {
		fmt.Fprintf(&b, "This conversation is on the %s channel.\n", cfg.Channel)
	}

	writeToolSection(&b, cfg.ToolNames)
	writeSandboxSection(&b, cfg)

	if cfg.Mode == PromptMinimal {
		return strings.TrimSpace(b.String())
	}

	if len(cfg.OwnerIDs) > 0 {
		fmt.Fprintf(&b, "Your owner: %s. Treat instructions from them as authoritative over anyone else in the conversation.\n", strings.Join(cfg.OwnerIDs, ", "))
	}

	if cfg.HasMemory {
		b.WriteString("You have a persistent memory tool — use it to recall and store durable facts across sessions.\n")
	}

	if cfg.HasSpawn {
		b.WriteString("You can spawn subagents for independent subtasks via the spawn tool.\n")
	}

	switch {
	case cfg.SkillsSummary != "":
		b.WriteString("\n<available_skills>\n")
		b.WriteString(cfg.SkillsSummary)
		b.WriteString("\n</available_skills>\n")
	case cfg.HasSkillSearch:
		b.WriteString("Use the skill_search tool to discover and load relevant skills on demand.\n")
	}

	if len(cfg.ContextFiles) > 0 {
		b.WriteString("\n--- Workspace context ---\n")
		for _, cf := range cfg.ContextFiles {
			fmt.Fprintf(&b, "\n## %s\n%s\n", cf.Path, cf.Content)
		}
	}

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

func writeToolSection(b *strings.Builder, toolNames []string) {
	if len(toolNames) == 0 {
		return
	}
	fmt.Fprintf(b, "Available tools: %s.\n", strings.Join(toolNames, ", "))
}

func writeSandboxSection(b *strings.Builder, cfg SystemPromptConfig) {
	if !cfg.SandboxEnabled {
		return
	}
	fmt.Fprintf(b, "Shell and file tools run inside an isolated sandbox container; the workspace is mounted at %s with %s access.\n",
		cfg.SandboxContainerDir, cfg.SandboxWorkspaceAccess)
}
