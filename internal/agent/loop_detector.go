package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// toolLoopState detects a tool being called repeatedly with identical
// arguments and getting identical results back — a sign the model is stuck
// rather than making progress — so the loop can break and tell it to try a
// different approach instead of spinning until MaxIterations.
type toolLoopState struct {
	counts  map[string]int
	results map[string]string
	repeats map[string]int
}

const (
	toolLoopWarnThreshold     = 3
	toolLoopCriticalThreshold = 5
)

func (s *toolLoopState) ensure() {
	if s.counts == nil {
		s.counts = make(map[string]int)
		s.results = make(map[string]string)
		s.repeats = make(map[string]int)
	}
}

// record hashes a tool call's name+arguments and bumps its call count,
// returning the hash for use with recordResult and detect.
func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	s.ensure()
	hash := hashToolCall(name, args)
	s.counts[hash]++
	return hash
}

// recordResult tracks whether this call produced the same result as last
// time it was made with the same arguments.
func (s *toolLoopState) recordResult(hash, result string) {
	s.ensure()
	if prev, ok := s.results[hash]; ok && prev == result {
		s.repeats[hash]++
	} else {
		s.repeats[hash] = 0
	}
	s.results[hash] = result
}

// detect returns a non-empty level ("warning" or "critical") once a call has
// repeated enough times with identical results, along with a message to
// either inject into the conversation (warning) or use as the final reply
// (critical).
func (s *toolLoopState) detect(name, hash string) (level, msg string) {
	s.ensure()
	count := s.counts[hash]
	repeat := s.repeats[hash]
	switch {
	case count >= toolLoopCriticalThreshold && repeat >= toolLoopCriticalThreshold-1:
		return "critical", fmt.Sprintf("tool %q called %d times with identical results", name, count)
	case count >= toolLoopWarnThreshold && repeat >= toolLoopWarnThreshold-1:
		return "warning", fmt.Sprintf(
			"[System: You've called %q %d times in a row with the same arguments and gotten the same result each time. Try a different approach.]",
			name, count)
	default:
		return "", ""
	}
}

func hashToolCall(name string, args map[string]interface{}) string {
	b, _ := json.Marshal(args)
	sum := sha256.Sum256(append([]byte(name+"|"), b...))
	return hex.EncodeToString(sum[:])
}
