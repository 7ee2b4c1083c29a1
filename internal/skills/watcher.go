package skills

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Loader whenever a file changes under any of its roots,
// so a skill added or edited on disk shows up without a process restart.
type Watcher struct {
	loader *Loader
	fsw    *fsnotify.Watcher
	done   chan struct{}
}

// NewWatcher creates a Watcher over loader's configured roots. Returns an
// error only if the underlying OS watch cannot be created; a missing root
// directory is skipped rather than treated as fatal.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{loader.WorkspaceDir(), loader.GlobalDir(), loader.ExtraDir()} {
		if dir == "" {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			slog.Debug("skills watcher: skipping unwatchable root", "dir", dir, "error", err)
		}
	}

	return &Watcher{loader: loader, fsw: fsw, done: make(chan struct{})}, nil
}

// Start begins watching in the background until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if err := w.loader.Reload(); err != nil {
				slog.Warn("skills watcher: reload failed", "event", event, "error", err)
			} else {
				slog.Debug("skills watcher: reloaded", "event", event.String())
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("skills watcher: fsnotify error", "error", err)
		}
	}
}

// Stop closes the underlying OS watch and waits for run to exit.
func (w *Watcher) Stop() {
	w.fsw.Close()
	<-w.done
}
