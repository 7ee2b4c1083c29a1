package coordination

import "testing"

func TestMessageLogHistoryOrder(t *testing.T) {
	l := NewMessageLog()
	l.Send(SessionMessage{From: "parent", To: "child", Content: "first"})
	l.Send(SessionMessage{From: "parent", To: "child", Content: "second"})
	l.Send(SessionMessage{From: "other", To: "someone-else", Content: "ignored"})

	hist := l.History("child")
	if len(hist) != 2 || hist[0].Content != "first" || hist[1].Content != "second" {
		t.Fatalf("got %+v", hist)
	}
}

func TestMessageLogHistoryEmpty(t *testing.T) {
	l := NewMessageLog()
	if hist := l.History("nobody"); len(hist) != 0 {
		t.Fatalf("expected empty history, got %+v", hist)
	}
}
