package skills

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Loader discovers and caches skills from up to three roots, in increasing
// precedence: global (shared across all agents), extra (operator-configured,
// e.g. an org-wide skills repo), workspace (per-agent, highest precedence —
// a workspace skill shadows a global one with the same name).
type Loader struct {
	workspaceDir string
	globalDir    string
	extraDir     string

	mu     sync.RWMutex
	byName map[string]Skill
}

// NewLoader builds a Loader and performs an initial load. globalDir and
// extraDir may be empty to skip that root.
func NewLoader(workspaceDir, globalDir, extraDir string) *Loader {
	l := &Loader{workspaceDir: workspaceDir, globalDir: globalDir, extraDir: extraDir}
	_ = l.Reload()
	return l
}

// Reload re-scans all configured roots, replacing the cached skill set.
func (l *Loader) Reload() error {
	byName := make(map[string]Skill)

	load := func(root, source string) error {
		if root == "" {
			return nil
		}
		dirs, err := discoverSkillDirs(root)
		if err != nil {
			return fmt.Errorf("scan %s skills: %w", source, err)
		}
		for _, dir := range dirs {
			sk, err := loadSkill(dir, source)
			if err != nil {
				continue // a malformed skill shouldn't break the whole load
			}
			byName[sk.Name] = sk
		}
		return nil
	}

	// Lowest precedence first so later calls overwrite by name.
	if err := load(l.globalDir, "global"); err != nil {
		return err
	}
	if err := load(l.extraDir, "extra"); err != nil {
		return err
	}
	if err := load(l.workspaceDir, "workspace"); err != nil {
		return err
	}

	l.mu.Lock()
	l.byName = byName
	l.mu.Unlock()
	return nil
}

// ListSkills returns all loaded skills, sorted by name.
func (l *Loader) ListSkills() []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Skill, 0, len(l.byName))
	for _, sk := range l.byName {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FilterSkills returns the skills visible under allowList: nil means every
// loaded skill, an empty (non-nil) slice means none, and a populated slice
// restricts to those names.
func (l *Loader) FilterSkills(allowList []string) []Skill {
	all := l.ListSkills()
	if allowList == nil {
		return all
	}
	if len(allowList) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowList))
	for _, name := range allowList {
		allowed[name] = struct{}{}
	}

	out := make([]Skill, 0, len(all))
	for _, sk := range all {
		if _, ok := allowed[sk.Name]; ok {
			out = append(out, sk)
		}
	}
	return out
}

// Get returns the skill registered under name.
func (l *Loader) Get(name string) (Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sk, ok := l.byName[name]
	return sk, ok
}

// BuildSummary renders the skills visible under allowList as an
// <available_skills> XML block for inlining into the system prompt.
func (l *Loader) BuildSummary(allowList []string) string {
	filtered := l.FilterSkills(allowList)
	if len(filtered) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<available_skills>\n")
	for _, sk := range filtered {
		b.WriteString(fmt.Sprintf("  <skill name=%q>%s</skill>\n", sk.Name, sk.Description))
	}
	b.WriteString("</available_skills>")
	return b.String()
}

// Search returns skills whose name or description contains query
// (case-insensitive), for the skill_search tool.
func (l *Loader) Search(query string) []Skill {
	query = strings.ToLower(strings.TrimSpace(query))
	all := l.ListSkills()
	if query == "" {
		return all
	}

	var out []Skill
	for _, sk := range all {
		if strings.Contains(strings.ToLower(sk.Name), query) ||
			strings.Contains(strings.ToLower(sk.Description), query) {
			out = append(out, sk)
		}
	}
	return out
}

// WorkspaceDir returns the per-agent root this loader was built with, used
// by the filesystem watcher.
func (l *Loader) WorkspaceDir() string { return l.workspaceDir }

// GlobalDir returns the shared root this loader was built with.
func (l *Loader) GlobalDir() string { return l.globalDir }

// ExtraDir returns the operator-configured extra root this loader was built with.
func (l *Loader) ExtraDir() string { return l.extraDir }
