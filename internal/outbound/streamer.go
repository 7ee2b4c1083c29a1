package outbound

import (
	"context"
	"sync"
	"time"
)

// DefaultThrottleInterval matches the teacher's Telegram streaming editor
// cadence: edit the placeholder at most twice a second.
const DefaultThrottleInterval = 500 * time.Millisecond

// EditFn applies an in-place edit of the streamed message to its final (or
// latest partial) text.
type EditFn func(ctx context.Context, text string) error

// Streamer throttles repeated in-place edits of one outbound message as
// chunks of a streaming LLM reply arrive, coalescing bursts of updates that
// arrive faster than ThrottleInterval into a single edit.
type Streamer struct {
	Edit     EditFn
	Interval time.Duration

	mu       sync.Mutex
	latest   string
	dirty    bool
	lastSent time.Time
	timer    *time.Timer
	closed   bool
}

// NewStreamer builds a Streamer with the given edit callback.
func NewStreamer(edit EditFn) *Streamer {
	return &Streamer{Edit: edit, Interval: DefaultThrottleInterval}
}

// Update records the latest full text seen so far and, if enough time has
// passed since the last edit, flushes it immediately; otherwise it schedules
// a flush for when the throttle window closes.
func (s *Streamer) Update(ctx context.Context, fullText string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.latest = fullText
	s.dirty = true

	elapsed := time.Since(s.lastSent)
	if elapsed >= s.interval() {
		s.flushLocked(ctx) // unlocks s.mu itself
		return
	}
	if s.timer == nil {
		wait := s.interval() - elapsed
		s.timer = time.AfterFunc(wait, func() { s.flushAsync(ctx) })
	}
	s.mu.Unlock()
}

// Finish flushes any pending text unconditionally, bypassing the throttle,
// since the stream is complete and the final text must always be shown.
func (s *Streamer) Finish(ctx context.Context, finalText string) error {
	s.mu.Lock()
	s.latest = finalText
	s.dirty = true
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	text := s.latest
	s.mu.Unlock()

	if s.Edit == nil {
		return nil
	}
	return s.Edit(ctx, text)
}

func (s *Streamer) flushAsync(ctx context.Context) {
	s.mu.Lock()
	s.timer = nil
	if !s.dirty || s.closed {
		s.mu.Unlock()
		return
	}
	s.flushLocked(ctx)
}

// flushLocked must be called with s.mu held; it unlocks before calling Edit
// so a slow edit callback never blocks concurrent Update calls.
func (s *Streamer) flushLocked(ctx context.Context) {
	text := s.latest
	s.dirty = false
	s.lastSent = time.Now()
	s.mu.Unlock()
	if s.Edit != nil {
		_ = s.Edit(ctx, text)
	}
}

func (s *Streamer) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultThrottleInterval
	}
	return s.Interval
}
