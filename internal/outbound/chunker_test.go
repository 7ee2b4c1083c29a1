package outbound

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSplitShortContentUnchanged(t *testing.T) {
	chunks := Split("hello", ChunkOptions{MaxLen: 2000})
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("got %+v", chunks)
	}
}

func TestSplitEmptyContent(t *testing.T) {
	if chunks := Split("", ChunkOptions{MaxLen: 10}); chunks != nil {
		t.Fatalf("expected nil, got %+v", chunks)
	}
}

func TestSplitPrefersNewline(t *testing.T) {
	content := "aaaaa\nbbbbb\nccccc"
	chunks := Split(content, ChunkOptions{MaxLen: 8})
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range chunks {
		if len(c) > 8 {
			t.Fatalf("chunk too long: %q", c)
		}
	}
	if got := strings.Join(chunks, ""); got != content {
		t.Fatalf("round trip failed: got %q, want %q", got, content)
	}
}

// TestSplitRoundTripProperty is the mandatory property: for any text and any
// max_len >= 1, concatenating Split(text, max_len) recovers text exactly.
func TestSplitRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("concatenating chunks recovers the original text", prop.ForAll(
		func(content string, maxLen int) bool {
			chunks := Split(content, ChunkOptions{MaxLen: maxLen})
			return strings.Join(chunks, "") == content
		},
		gen.AnyString(),
		gen.IntRange(1, 500),
	))

	properties.Property("no chunk exceeds max_len", prop.ForAll(
		func(content string, maxLen int) bool {
			for _, c := range Split(content, ChunkOptions{MaxLen: maxLen}) {
				if len(c) > maxLen {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
		gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}

func TestSplitHardCutRespectsRuneBoundary(t *testing.T) {
	content := "日本語のテキストがとても長い場合の分割テスト"
	chunks := Split(content, ChunkOptions{MaxLen: 10})
	for _, c := range chunks {
		if !isValidUTF8Tail(c) {
			t.Fatalf("chunk has invalid utf8 boundary: %q", c)
		}
	}
}

func isValidUTF8Tail(s string) bool {
	return utf8.ValidString(s)
}

func TestTruncate(t *testing.T) {
	s := "abcdefgh"
	got := Truncate(s, 4)
	if got != "abcd…" {
		t.Fatalf("got %q", got)
	}
	if Truncate("short", 10) != "short" {
		t.Fatal("should not truncate shorter strings")
	}
}
