package agent

import (
	"regexp"
)

// InputGuard scans inbound user messages for common prompt-injection
// phrasing before they reach the model. It's advisory, not a security
// boundary — matches are logged/warned/blocked per LoopConfig.InjectionAction,
// never silently rewritten.
type InputGuard struct {
	patterns []*regexp.Regexp
}

// NewInputGuard builds an InputGuard with the default pattern set.
func NewInputGuard() *InputGuard {
	return &InputGuard{patterns: defaultInjectionPatterns}
}

// Scan returns the names of every pattern that matched message.
func (g *InputGuard) Scan(message string) []string {
	if g == nil || message == "" {
		return nil
	}
	var matches []string
	for _, p := range g.patterns {
		if p.MatchString(message) {
			matches = append(matches, p.String())
		}
	}
	return matches
}

// defaultInjectionPatterns catches the common phrasing used to try to
// override an agent's system prompt or safety instructions from inside a
// user message. Deliberately loose — false positives just get logged/warned,
// not blocked, unless InjectionAction is set to "block".
var defaultInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all |any )?(previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)disregard (your |all )?(system prompt|instructions|rules)`),
	regexp.MustCompile(`(?i)you are now (in )?(developer|debug|jailbreak|dan) mode`),
	regexp.MustCompile(`(?i)reveal (your |the )?(system prompt|hidden instructions)`),
	regexp.MustCompile(`(?i)pretend (you have no|you don'?t have any) (restrictions|guidelines|rules)`),
	regexp.MustCompile(`(?i)\[system\s*(override|message)\]`),
	regexp.MustCompile(`(?i)act as if you (have no|had no) (previous|prior) (instructions|rules)`),
}
