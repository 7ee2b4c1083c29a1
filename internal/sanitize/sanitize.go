// Package sanitize cleans raw LLM output before it reaches a channel:
// stripping leaked reasoning/thinking tags and recovering tool calls that
// a model emitted as text instead of a structured tool_use block.
//
// Grounded on internal/agent/sanitize.go's pipeline shape (a sequence of
// small, independently testable passes run in order) and on the sanitizer
// semantics in the original Rust agents crate (response_sanitizer.rs).
package sanitize

import "strings"

// knownWrapperTags are XML-ish tags models occasionally leak into visible
// output instead of keeping them in a private reasoning channel.
var knownWrapperTags = []string{
	"think", "thinking", "reasoning", "final", "reflection", "scratchpad",
}

// StripReasoningTags removes <tag>...</tag> and pipe-delimited <|tag|>...<|/tag|>
// blocks for any tag in knownWrapperTags, including tags carrying attributes
// (<thinking mode="x">...</thinking>). An unclosed opening tag strips to EOF,
// matching the original sanitizer's fail-open behaviour (better to drop
// leaked reasoning than to show it half-formed).
func StripReasoningTags(s string) string {
	for _, tag := range knownWrapperTags {
		s = stripTagPair(s, tag, "<", ">", "</", ">")
		s = stripTagPair(s, tag, "<|", "|>", "<|/", "|>")
	}
	return s
}

func stripTagPair(s, tag, openPrefix, openSuffix, closePrefix, closeSuffix string) string {
	var out strings.Builder
	rest := s
	openTagBare := openPrefix + tag
	closeTag := closePrefix + tag + closeSuffix

	for {
		start := indexOpenTag(rest, openTagBare, openSuffix)
		if start < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])

		openEnd := strings.Index(rest[start:], openSuffix)
		if openEnd < 0 {
			// Unterminated open tag: drop everything from here to EOF.
			break
		}
		contentStart := start + openEnd + len(openSuffix)

		closeIdx := strings.Index(rest[contentStart:], closeTag)
		if closeIdx < 0 {
			// Unclosed tag: drop to EOF.
			break
		}
		rest = rest[contentStart+closeIdx+len(closeTag):]
	}
	return out.String()
}

// indexOpenTag finds the start of an opening tag like "<think" or "<think "
// (bare tag name, optionally followed by attributes, up to openSuffix),
// ensuring we don't match tags with the name as a prefix (e.g. "<thinking2").
func indexOpenTag(s, bare, suffix string) int {
	from := 0
	for {
		idx := strings.Index(s[from:], bare)
		if idx < 0 {
			return -1
		}
		abs := from + idx
		after := abs + len(bare)
		if after >= len(s) {
			return -1
		}
		c := s[after]
		if c == ' ' || c == '\t' || c == '\n' || s[after:after+len(suffix)] == suffix {
			return abs
		}
		from = abs + len(bare)
	}
}

// StripStandaloneBars removes lone "|" tokens left behind by malformed
// pipe-delimited tag wrappers once the tag pair itself has been stripped.
func StripStandaloneBars(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "|" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Clean runs the full simple sanitization pipeline: tag stripping followed
// by stray-bar cleanup and outer whitespace trim.
func Clean(s string) string {
	s = StripReasoningTags(s)
	s = StripStandaloneBars(s)
	return strings.TrimSpace(s)
}
