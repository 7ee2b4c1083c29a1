package agent

import (
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/providers"
)

const (
	defaultKeepLastAssistants   = 3
	defaultSoftTrimRatio        = 0.3
	defaultHardClearRatio       = 0.5
	defaultMinPrunableToolChars = 50000
	defaultSoftTrimMaxChars     = 4000
	defaultSoftTrimHeadChars    = 1500
	defaultSoftTrimTailChars    = 1500
	defaultHardClearPlaceholder = "[Old tool result content cleared]"
)

// pruneContextMessages trims or clears old tool-result content to keep a
// long-running session within its context window. Mode "off" (the default)
// is a no-op. Mode "cache-ttl" soft-trims (head/tail truncation) tool
// results once estimated usage crosses SoftTrimRatio of the window, and
// hard-clears them (replacing with a placeholder) past HardClearRatio. The
// last KeepLastAssistants assistant turns, and everything after them, are
// never touched so recent context stays intact.
func pruneContextMessages(msgs []providers.Message, contextWindow int, cfg *config.ContextPruningConfig) []providers.Message {
	if cfg == nil || cfg.Mode != "cache-ttl" || contextWindow <= 0 || len(msgs) == 0 {
		return msgs
	}

	softRatio := cfg.SoftTrimRatio
	if softRatio <= 0 {
		softRatio = defaultSoftTrimRatio
	}
	hardRatio := cfg.HardClearRatio
	if hardRatio <= 0 {
		hardRatio = defaultHardClearRatio
	}

	usageRatio := float64(EstimateTokens(msgs)) / float64(contextWindow)
	if usageRatio < softRatio {
		return msgs
	}

	minChars := cfg.MinPrunableToolChars
	if minChars <= 0 {
		minChars = defaultMinPrunableToolChars
	}
	if totalToolChars(msgs) < minChars {
		return msgs
	}

	keepLast := cfg.KeepLastAssistants
	if keepLast <= 0 {
		keepLast = defaultKeepLastAssistants
	}
	protectedFrom := protectedIndex(msgs, keepLast)

	hardClear := usageRatio >= hardRatio
	hardClearEnabled := true
	placeholder := defaultHardClearPlaceholder
	if cfg.HardClear != nil {
		if cfg.HardClear.Enabled != nil {
			hardClearEnabled = *cfg.HardClear.Enabled
		}
		if cfg.HardClear.Placeholder != "" {
			placeholder = cfg.HardClear.Placeholder
		}
	}

	maxChars, headChars, tailChars := defaultSoftTrimMaxChars, defaultSoftTrimHeadChars, defaultSoftTrimTailChars
	if cfg.SoftTrim != nil {
		if cfg.SoftTrim.MaxChars > 0 {
			maxChars = cfg.SoftTrim.MaxChars
		}
		if cfg.SoftTrim.HeadChars > 0 {
			headChars = cfg.SoftTrim.HeadChars
		}
		if cfg.SoftTrim.TailChars > 0 {
			tailChars = cfg.SoftTrim.TailChars
		}
	}

	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if i >= protectedFrom || out[i].Role != "tool" || len(out[i].Content) <= maxChars {
			continue
		}
		if hardClear && hardClearEnabled {
			out[i].Content = placeholder
			continue
		}
		if headChars+tailChars >= len(out[i].Content) {
			continue
		}
		out[i].Content = out[i].Content[:headChars] + "\n...[trimmed]...\n" + out[i].Content[len(out[i].Content)-tailChars:]
	}
	return out
}

// protectedIndex returns the index of the first message belonging to the
// last keepLast assistant turns — messages at or after this index are never
// pruned.
func protectedIndex(msgs []providers.Message, keepLast int) int {
	assistantSeen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			assistantSeen++
			if assistantSeen > keepLast {
				return i + 1
			}
		}
	}
	return 0
}

func totalToolChars(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		if m.Role == "tool" {
			total += len(m.Content)
		}
	}
	return total
}
