package sanitize

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// ToolCall is a tool invocation recovered from free-form assistant text.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	Start     int // byte offset of the match in the source text
	End       int
}

const maxSyntheticIDLen = 40

var (
	fencedToolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)\\n?```")
	xmlFunctionRe    = regexp.MustCompile(`(?s)<function=([a-zA-Z0-9_.-]+)>(.*?)</function>`)
	xmlParameterRe   = regexp.MustCompile(`(?s)<parameter=([a-zA-Z0-9_.-]+)>(.*?)</parameter>`)
	bareJSONStartRe  = regexp.MustCompile(`\{\s*"tool"\s*:`)
	wrapperTagRe     = regexp.MustCompile(`(?s)</?tool_call>`)
)

// ParseToolCalls recovers every tool call embedded in text, from three
// surface forms (fenced ```tool_call JSON blocks, <function=...> XML, and
// bare {"tool": ...} JSON objects found by brace-depth scanning), resolving
// overlaps by earliest-start-wins as the original parser does.
func ParseToolCalls(text string) []ToolCall {
	var found []ToolCall
	found = append(found, parseFenced(text)...)
	found = append(found, parseXMLFunctions(text)...)
	found = append(found, parseBareJSON(text)...)

	sort.Slice(found, func(i, j int) bool { return found[i].Start < found[j].Start })

	var resolved []ToolCall
	lastEnd := -1
	for _, tc := range found {
		if tc.Start < lastEnd {
			continue // overlaps an earlier, earlier-starting match
		}
		resolved = append(resolved, tc)
		lastEnd = tc.End
	}
	for i := range resolved {
		if resolved[i].ID == "" {
			resolved[i].ID = syntheticID(resolved[i].Name, resolved[i].Start)
		}
	}
	return resolved
}

func parseFenced(text string) []ToolCall {
	var out []ToolCall
	for _, m := range fencedToolCallRe.FindAllStringSubmatchIndex(text, -1) {
		body := text[m[2]:m[3]]
		var payload struct {
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		repaired := repairJSON(body)
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			continue
		}
		out = append(out, ToolCall{
			Name:      payload.Tool,
			Arguments: payload.Arguments,
			Start:     m[0],
			End:       m[1],
		})
	}
	return out
}

func parseXMLFunctions(text string) []ToolCall {
	var out []ToolCall
	for _, m := range xmlFunctionRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		body := text[m[4]:m[5]]
		args := map[string]any{}
		for _, pm := range xmlParameterRe.FindAllStringSubmatch(body, -1) {
			args[pm[1]] = strings.TrimSpace(pm[2])
		}
		out = append(out, ToolCall{Name: name, Arguments: args, Start: m[0], End: m[1]})
	}
	return out
}

// parseBareJSON finds {"tool": ...} objects inline in text using brace-depth
// scanning that respects string escaping, since the JSON may not be fenced
// or XML-wrapped at all (a model emitting raw JSON as its whole reply).
func parseBareJSON(text string) []ToolCall {
	var out []ToolCall
	for _, loc := range bareJSONStartRe.FindAllStringIndex(text, -1) {
		start := loc[0]
		// Back up to the opening brace of the object this match is inside.
		braceStart := strings.LastIndexByte(text[:loc[1]], '{')
		if braceStart < 0 {
			continue
		}
		end := scanBraceDepth(text, braceStart)
		if end < 0 {
			continue
		}
		body := text[braceStart:end]
		var payload struct {
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		repaired := repairJSON(body)
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			continue
		}
		if payload.Tool == "" {
			continue
		}
		out = append(out, ToolCall{Name: payload.Tool, Arguments: payload.Arguments, Start: braceStart, End: end})
		_ = start
	}
	return out
}

// scanBraceDepth returns the index just past the closing '}' that matches
// the '{' at openIdx, tracking string literals so braces inside strings
// don't affect depth.
func scanBraceDepth(text string, openIdx int) int {
	depth := 0
	inString := false
	escaped := false
	for i := openIdx; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// repairJSON fixes the one malformed-JSON pattern the original json_repair
// fallback targets in practice: trailing commas before a closing bracket.
var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

func repairJSON(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// syntheticID derives a deterministic, short id for a recovered tool call
// that the model didn't tag with one, capped at maxSyntheticIDLen.
func syntheticID(name string, start int) string {
	h := sha1.New()
	h.Write([]byte(name))
	h.Write([]byte{byte(start), byte(start >> 8), byte(start >> 16)})
	sum := hex.EncodeToString(h.Sum(nil))
	id := "call_" + sum
	if len(id) > maxSyntheticIDLen {
		id = id[:maxSyntheticIDLen]
	}
	return id
}

// LooksLikeFailedToolCall heuristically detects tool-call-shaped text that
// none of the parsers above could successfully extract, signalling the
// caller should retry the LLM turn rather than show the raw text.
func LooksLikeFailedToolCall(text string) bool {
	if ParseToolCalls(text) != nil {
		return false
	}
	t := strings.TrimSpace(text)
	return strings.Contains(t, "tool_call") ||
		strings.Contains(t, "<function=") ||
		strings.HasPrefix(t, `{"tool"`) ||
		strings.Contains(t, `"tool":`)
}

// TrimToolCallWrappers removes stray <tool_call>/</tool_call> tags left
// around commentary after the structured payload inside has already been
// extracted by ParseToolCalls.
func TrimToolCallWrappers(text string) string {
	return strings.TrimSpace(wrapperTagRe.ReplaceAllString(text, ""))
}
