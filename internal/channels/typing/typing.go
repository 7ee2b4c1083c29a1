// Package typing runs a platform-agnostic "user is typing" keepalive loop.
// Most chat platforms expire a typing indicator after a few seconds, so a
// long-running agent turn needs to keep re-issuing it; this controller does
// that on a timer and enforces a hard max duration so a stuck turn can never
// leave a channel showing "typing" forever.
package typing

import (
	"log/slog"
	"sync"
	"time"
)

// Options configures a Controller.
type Options struct {
	// StartFn is called once immediately, then again every KeepaliveInterval
	// until Stop is called or MaxDuration elapses.
	StartFn func() error
	// KeepaliveInterval is how often StartFn is re-invoked.
	KeepaliveInterval time.Duration
	// MaxDuration is the safety-net ceiling after which the controller stops
	// itself even if Stop was never called.
	MaxDuration time.Duration
}

// Controller drives one channel's typing indicator for the duration of a
// single agent turn.
type Controller struct {
	opts   Options
	mu     sync.Mutex
	stopCh chan struct{}
	done   bool
}

// New builds a Controller. Call Start to begin, Stop to end it early.
func New(opts Options) *Controller {
	return &Controller{opts: opts, stopCh: make(chan struct{})}
}

// Start begins the keepalive loop in a background goroutine.
func (c *Controller) Start() {
	if c.opts.StartFn == nil {
		return
	}
	if err := c.opts.StartFn(); err != nil {
		slog.Debug("typing indicator failed", "error", err)
	}
	go c.loop()
}

func (c *Controller) loop() {
	interval := c.opts.KeepaliveInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(c.opts.MaxDuration)
	if c.opts.MaxDuration <= 0 {
		deadline = time.Now().Add(10 * time.Minute)
	}

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			if now.After(deadline) {
				return
			}
			if err := c.opts.StartFn(); err != nil {
				slog.Debug("typing keepalive failed", "error", err)
			}
		}
	}
}

// Stop ends the keepalive loop. Safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	close(c.stopCh)
}
