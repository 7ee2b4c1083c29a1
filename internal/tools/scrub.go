package tools

import "regexp"

// secretPatterns match common API key/token shapes that might otherwise leak
// into LLM context through tool output (e.g. exec printing an env var, or
// web_fetch pulling a page containing a Bearer token). Each pattern's whole
// match is replaced with "[REDACTED]".
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),                    // OpenAI/Anthropic-style API keys
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),         // Authorization: Bearer tokens
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                         // AWS access key IDs
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`),                      // GitHub personal access tokens
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}`), // JWTs
	regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)["':=\s]{1,4}[a-zA-Z0-9_\-/+]{16,}`),
}

// ScrubSecrets redacts substrings of s that look like API keys, bearer
// tokens, or other credentials before the text reaches an LLM or the user.
func ScrubSecrets(s string) string {
	if s == "" {
		return s
	}
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
