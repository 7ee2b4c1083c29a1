package bootstrap

import (
	"os"
	"path/filepath"
)

// ContextFile is a workspace file surfaced to an agent as part of its
// system prompt (AGENTS.md, SOUL.md, ... and BOOTSTRAP.md when present).
type ContextFile struct {
	Path    string
	Content string
}

// TruncateConfig bounds how much workspace context gets injected into a
// single request so a handful of large files can't blow the context window.
type TruncateConfig struct {
	MaxCharsPerFile int
	TotalMaxChars   int
}

// Defaults used when a TruncateConfig field is left at its zero value.
const (
	DefaultMaxCharsPerFile = 8000
	DefaultTotalMaxChars   = 24000
)

// contextFileNames lists, in injection order, every workspace file that can
// become a ContextFile. BootstrapFile is last since it's transient.
var contextFileNames = append(append([]string{}, templateFiles...), BootstrapFile)

// LoadWorkspaceFiles reads the standard workspace files that currently exist
// on disk under workspaceDir. Missing files are silently skipped — not every
// workspace has HEARTBEAT.md or a lingering BOOTSTRAP.md.
func LoadWorkspaceFiles(workspaceDir string) []ContextFile {
	var files []ContextFile
	for _, name := range contextFileNames {
		data, err := os.ReadFile(filepath.Join(workspaceDir, name))
		if err != nil {
			continue
		}
		files = append(files, ContextFile{Path: name, Content: string(data)})
	}
	return files
}

// BuildContextFiles truncates file contents so the combined context fits
// within cfg's budget: each file is capped at MaxCharsPerFile, and the
// running total is capped at TotalMaxChars (files beyond the total budget
// are dropped rather than silently concatenated).
func BuildContextFiles(files []ContextFile, cfg TruncateConfig) []ContextFile {
	maxPerFile := cfg.MaxCharsPerFile
	if maxPerFile <= 0 {
		maxPerFile = DefaultMaxCharsPerFile
	}
	totalMax := cfg.TotalMaxChars
	if totalMax <= 0 {
		totalMax = DefaultTotalMaxChars
	}

	out := make([]ContextFile, 0, len(files))
	total := 0
	for _, f := range files {
		if total >= totalMax {
			break
		}
		content := f.Content
		if len(content) > maxPerFile {
			content = content[:maxPerFile] + "\n...[truncated]"
		}
		if remaining := totalMax - total; len(content) > remaining {
			content = content[:remaining] + "\n...[truncated]"
		}
		out = append(out, ContextFile{Path: f.Path, Content: content})
		total += len(content)
	}
	return out
}
