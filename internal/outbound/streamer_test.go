package outbound

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStreamerThrottlesBursts(t *testing.T) {
	var mu sync.Mutex
	var edits []string

	s := NewStreamer(func(_ context.Context, text string) error {
		mu.Lock()
		edits = append(edits, text)
		mu.Unlock()
		return nil
	})
	s.Interval = 50 * time.Millisecond

	ctx := context.Background()
	s.Update(ctx, "a")  // flushes immediately (cold start)
	s.Update(ctx, "ab") // throttled
	s.Update(ctx, "abc") // throttled, coalesces with previous

	mu.Lock()
	n := len(edits)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly 1 immediate edit, got %d: %+v", n, edits)
	}

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	n = len(edits)
	last := ""
	if n > 0 {
		last = edits[n-1]
	}
	mu.Unlock()
	if n < 2 {
		t.Fatalf("expected throttled flush to fire, got %d edits", n)
	}
	if last != "abc" {
		t.Fatalf("expected coalesced flush to carry latest text, got %q", last)
	}
}

func TestStreamerFinishBypassesThrottle(t *testing.T) {
	var got string
	s := NewStreamer(func(_ context.Context, text string) error {
		got = text
		return nil
	})
	s.Interval = time.Hour // would never flush on its own

	ctx := context.Background()
	s.Update(ctx, "partial")
	if err := s.Finish(ctx, "final"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got != "final" {
		t.Fatalf("got %q, want final", got)
	}
}
