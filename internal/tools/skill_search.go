package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jsdzhang/moltis/internal/skills"
)

// SkillSearchTool lets the agent look up a skill by keyword when the full
// skill set is too large to inline into the system prompt.
type SkillSearchTool struct {
	loader *skills.Loader
}

func NewSkillSearchTool(loader *skills.Loader) *SkillSearchTool {
	return &SkillSearchTool{loader: loader}
}

func (t *SkillSearchTool) Name() string { return "skill_search" }
func (t *SkillSearchTool) Description() string {
	return "Search available skills by name or keyword and return their full instructions"
}
func (t *SkillSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Keyword to search skill names and descriptions for"},
		},
		"required": []string{"query"},
	}
}

func (t *SkillSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)

	matches := t.loader.Search(query)
	if len(matches) == 0 {
		return SilentResult(fmt.Sprintf("no skills matched %q", query))
	}

	var b strings.Builder
	for _, sk := range matches {
		fmt.Fprintf(&b, "## %s\n%s\n\n%s\n\n", sk.Name, sk.Description, sk.Content)
	}
	return SilentResult(strings.TrimRight(b.String(), "\n"))
}
