// Package outbound implements the streaming outbound layer: splitting long
// assistant replies into platform-sized chunks, editing a placeholder
// message in place as chunks arrive, and building media previews.
//
// Grounded on internal/channels/discord/discord.go's sendChunked (hard
// character-limit splitting) and internal/channels/telegram's streaming
// edit loop, generalized into one chunker usable by every channel plugin.
package outbound

import "strings"

// ChunkOptions configures Split.
type ChunkOptions struct {
	// MaxLen is the hard per-chunk character ceiling (e.g. 2000 for Discord,
	// 4096 for Telegram).
	MaxLen int
}

// Split breaks content into chunks no longer than opts.MaxLen, preferring
// break points in this order: a newline outside an open fenced code block,
// then any newline, then a hard cut at MaxLen. Concatenating the returned
// chunks always reproduces content exactly: a fenced code block that
// straddles a chunk boundary is left unbalanced (the fence just renders
// unclosed in one chunk and reopens in the next) rather than patched with
// synthetic fence markers, which would add bytes not present in the input.
func Split(content string, opts ChunkOptions) []string {
	if opts.MaxLen <= 0 || len(content) <= opts.MaxLen {
		if content == "" {
			return nil
		}
		return []string{content}
	}

	var chunks []string
	inFence := false
	remaining := content

	for len(remaining) > opts.MaxLen {
		window := remaining[:opts.MaxLen]
		cut := bestCutPoint(window, inFence)
		if cut == len(window) {
			// Hard cut: step back so a multi-byte character isn't split,
			// unless MaxLen is narrower than that one character.
			if safe := safeRuneBoundary(remaining, opts.MaxLen); safe > 0 {
				cut = safe
			}
		}

		chunk := remaining[:cut]
		inFence = toggleFenceState(chunk, inFence)
		chunks = append(chunks, chunk)

		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// bestCutPoint finds where to cut within window: the last newline outside
// an open fence, else the last newline anywhere, else a hard cut at the end
// of window (Split moves a hard cut back to the nearest rune boundary).
func bestCutPoint(window string, startInFence bool) int {
	if idx := lastNewlineOutsideFence(window, startInFence); idx > 0 {
		return idx
	}
	if idx := strings.LastIndexByte(window, '\n'); idx > 0 {
		return idx
	}
	return safeRuneBoundary(window, len(window))
}

func lastNewlineOutsideFence(window string, startInFence bool) int {
	inFence := startInFence
	last := -1
	lines := strings.Split(window, "\n")
	pos := 0
	for i, line := range lines {
		lineEnd := pos + len(line)
		if i < len(lines)-1 { // has a trailing newline in the original
			if !inFence {
				last = lineEnd
			}
		}
		if isFenceDelimiter(line) {
			inFence = !inFence
		}
		pos = lineEnd + 1
	}
	return last
}

func isFenceDelimiter(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func toggleFenceState(chunk string, start bool) bool {
	inFence := start
	for _, line := range strings.Split(chunk, "\n") {
		if isFenceDelimiter(line) {
			inFence = !inFence
		}
	}
	return inFence
}

// safeRuneBoundary walks backward from max until it lands on a valid UTF-8
// rune boundary, so a hard cut never splits a multi-byte character.
func safeRuneBoundary(s string, max int) int {
	if max >= len(s) {
		return len(s)
	}
	for max > 0 && isUTF8ContinuationByte(s[max]) {
		max--
	}
	return max
}

func isUTF8ContinuationByte(b byte) bool { return b&0xC0 == 0x80 }

// Truncate shortens s to maxLen at a safe rune boundary, appending an
// ellipsis when truncation occurred.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := safeRuneBoundary(s, maxLen)
	return s[:cut] + "…"
}
