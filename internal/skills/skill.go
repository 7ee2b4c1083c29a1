// Package skills loads reusable agent skills from SKILL.md files: short
// markdown documents with a frontmatter header (name, description) and a
// body of instructions, discoverable by the agent loop either inlined into
// the system prompt or via the skill_search tool.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const skillFileName = "SKILL.md"

// Skill is one loaded SKILL.md.
type Skill struct {
	Name        string
	Description string
	Content     string // body after the frontmatter delimiter
	Path        string // directory the skill was loaded from
	Source      string // "workspace", "global", or "extra"
}

// loadSkill reads dir/SKILL.md and parses its frontmatter + body.
func loadSkill(dir, source string) (Skill, error) {
	p := filepath.Join(dir, skillFileName)
	data, err := os.ReadFile(p)
	if err != nil {
		return Skill{}, fmt.Errorf("read %s: %w", p, err)
	}

	sk := parseSkillMD(string(data))
	sk.Path = dir
	sk.Source = source
	if sk.Name == "" {
		sk.Name = filepath.Base(dir)
	}
	return sk, nil
}

// parseSkillMD splits content into a "---"-delimited frontmatter block and a
// body, and fills in Name/Description/Content from the frontmatter's simple
// "key: value" lines. Content with no frontmatter becomes the whole body.
func parseSkillMD(content string) Skill {
	if !strings.HasPrefix(content, "---") {
		return Skill{Content: content}
	}

	rest := strings.TrimLeft(content[3:], "\r\n")
	idx := strings.Index(rest, "---")
	if idx < 0 {
		return Skill{Content: content}
	}

	frontmatter := rest[:idx]
	body := strings.TrimLeft(rest[idx+3:], "\r\n")

	var sk Skill
	for _, line := range strings.Split(frontmatter, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		val := strings.Trim(strings.TrimSpace(line[colon+1:]), `"'`)
		switch strings.ToLower(key) {
		case "name":
			sk.Name = val
		case "description":
			sk.Description = val
		}
	}

	sk.Content = body
	return sk
}

// discoverSkillDirs lists immediate subdirectories of root that contain a
// SKILL.md, returning nothing (not an error) when root doesn't exist.
func discoverSkillDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, skillFileName)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
