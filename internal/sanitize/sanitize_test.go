package sanitize

import "testing"

func TestStripReasoningTags(t *testing.T) {
	in := "<thinking>secret plan</thinking>Hello there"
	want := "Hello there"
	if got := StripReasoningTags(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStripReasoningTagsPipeDelimited(t *testing.T) {
	in := "<|thinking|>hidden<|/thinking|>visible"
	want := "visible"
	if got := StripReasoningTags(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStripReasoningTagsUnclosedDropsToEOF(t *testing.T) {
	in := "keep this<thinking>never closes"
	want := "keep this"
	if got := StripReasoningTags(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCleanIdempotent(t *testing.T) {
	in := "<thinking>x</thinking>  final answer  "
	once := Clean(in)
	twice := Clean(once)
	if once != twice {
		t.Fatalf("Clean not idempotent: %q != %q", once, twice)
	}
	if once != "final answer" {
		t.Fatalf("got %q", once)
	}
}

func TestStripStandaloneBars(t *testing.T) {
	in := "line one\n|\nline two"
	want := "line one\nline two"
	if got := StripStandaloneBars(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
