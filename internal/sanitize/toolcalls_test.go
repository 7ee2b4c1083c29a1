package sanitize

import "testing"

func TestParseToolCallsFenced(t *testing.T) {
	text := "before\n```tool_call\n{\"tool\": \"web_search\", \"arguments\": {\"q\": \"go\"}}\n```\nafter"
	calls := ParseToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "web_search" {
		t.Fatalf("got name %q", calls[0].Name)
	}
	if calls[0].Arguments["q"] != "go" {
		t.Fatalf("got args %+v", calls[0].Arguments)
	}
	if calls[0].ID == "" || len(calls[0].ID) > maxSyntheticIDLen {
		t.Fatalf("bad synthetic id %q", calls[0].ID)
	}
}

func TestParseToolCallsXMLFunction(t *testing.T) {
	text := `<function=shell><parameter=command>ls -la</parameter></function>`
	calls := ParseToolCalls(text)
	if len(calls) != 1 || calls[0].Name != "shell" {
		t.Fatalf("got %+v", calls)
	}
	if calls[0].Arguments["command"] != "ls -la" {
		t.Fatalf("got args %+v", calls[0].Arguments)
	}
}

func TestParseToolCallsBareJSONWithTrailingComma(t *testing.T) {
	text := `{"tool": "read_file", "arguments": {"path": "a.go",},}`
	calls := ParseToolCalls(text)
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("got %+v", calls)
	}
}

func TestParseToolCallsOverlapEarliestWins(t *testing.T) {
	// Two overlapping bare-JSON-looking fragments; only the earliest start
	// should survive resolution.
	text := `{"tool": "a", "arguments": {"nested": {"tool": "b", "arguments": {}}}}`
	calls := ParseToolCalls(text)
	if len(calls) != 1 || calls[0].Name != "a" {
		t.Fatalf("expected outer call 'a' to win, got %+v", calls)
	}
}

func TestLooksLikeFailedToolCall(t *testing.T) {
	if !LooksLikeFailedToolCall(`{"tool": broken json`) {
		t.Fatal("expected failed tool call heuristic to trigger")
	}
	if LooksLikeFailedToolCall("just a normal reply") {
		t.Fatal("unexpected trigger on normal text")
	}
}

func TestTrimToolCallWrappers(t *testing.T) {
	in := "<tool_call>leftover</tool_call> trailing note"
	want := "leftover trailing note"
	if got := TrimToolCallWrappers(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
