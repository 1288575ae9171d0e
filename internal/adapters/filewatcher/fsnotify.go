// Package filewatcher watches the contract inbox directory.
package filewatcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/redline-go/internal/domain/ports"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

// DefaultDebounce is how long a file must stay quiet before its event is emitted.
const DefaultDebounce = 300 * time.Millisecond

// FSNotifyWatcher implements ports.FileWatcher using fsnotify. Bursts of
// create/write events for one path are coalesced into a single event.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	debounce   time.Duration
	log        *logger.Logger
}

// NewFSNotifyWatcher creates a watcher for the given extensions
// (.docx, .json and .txt when empty).
func NewFSNotifyWatcher(extensions []string, log *logger.Logger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".docx", ".json", ".txt"}
	}

	return &FSNotifyWatcher{
		watcher:    w,
		extensions: extensions,
		debounce:   DefaultDebounce,
		log:        logger.OrNop(log).With("comp", "filewatcher"),
	}, nil
}

// SetDebounce changes the quiet period. Zero emits every event immediately.
func (w *FSNotifyWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

type pending struct {
	op   ports.FileOperation
	last time.Time
}

// Watch starts monitoring dir and emits events until ctx is done.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)

	go func() {
		defer close(events)

		waiting := make(map[string]*pending)
		var tick <-chan time.Time
		if w.debounce > 0 {
			ticker := time.NewTicker(w.debounce / 2)
			defer ticker.Stop()
			tick = ticker.C
		}

		emit := func(path string, op ports.FileOperation) bool {
			select {
			case events <- ports.FileEvent{Path: path, Operation: op}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case now := <-tick:
				for path, p := range waiting {
					if now.Sub(p.last) < w.debounce {
						continue
					}
					delete(waiting, path)
					if !emit(path, p.op) {
						return
					}
				}

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatched(event.Name) {
					continue
				}

				var op ports.FileOperation
				switch {
				case event.Op&fsnotify.Create == fsnotify.Create:
					op = ports.FileCreated
				case event.Op&fsnotify.Write == fsnotify.Write:
					op = ports.FileModified
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					delete(waiting, event.Name)
					if !emit(event.Name, ports.FileDeleted) {
						return
					}
					continue
				default:
					continue
				}

				if w.debounce == 0 {
					if !emit(event.Name, op) {
						return
					}
					continue
				}
				if p, ok := waiting[event.Name]; ok {
					// A create followed by writes is still a create.
					p.last = time.Now()
					continue
				}
				waiting[event.Name] = &pending{op: op, last: time.Now()}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watch error", "dir", dir, "err", err)
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

// isWatched checks the extension and skips editor lock and temp files.
func (w *FSNotifyWatcher) isWatched(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
