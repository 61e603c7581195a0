// Package inotify is a bridge: it watches a set of filesystem paths and
// submits named events to an event.Store when they change, the same role
// spec.md §1 assigns to "bridges" sitting outside the supervisor core (udev,
// cron, socket listeners, etc). It is not required for the core's operation,
// and the serve command does not start it.
package inotify

import (
	"context"
	"os"

	"github.com/tjper/initd/internal/fsnotify"
	"github.com/tjper/initd/internal/log"
	"github.com/tjper/initd/internal/supervisor/event"
)

var logger = log.New(os.Stdout, "inotify")

// Bridge watches a fixed set of paths and emits events named after the
// path's change, e.g. "file-modified" / "file-created", with an
// INOTIFY_PATH env entry identifying which path fired.
type Bridge struct {
	store   *event.Store
	watcher *fsnotify.Watcher
}

// New creates a Bridge that emits onto store. Paths are added via Watch
// before calling Run.
func New(store *event.Store) (*Bridge, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Bridge{store: store, watcher: w}, nil
}

// Watch begins watching path for changes.
func (b *Bridge) Watch(path string) error {
	_, err := b.watcher.AddWatch(path)
	return err
}

// Run translates inotify events into store emissions until ctx is
// cancelled.
func (b *Bridge) Run(ctx context.Context) {
	defer b.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.emit(ev)
		}
	}
}

func (b *Bridge) emit(ev fsnotify.Event) {
	env := []string{"INOTIFY_PATH=" + ev.Path}

	if ev.Op&fsnotify.Create == fsnotify.Create {
		b.store.Emit("file-created", env)
	}
	if ev.Op&fsnotify.Write == fsnotify.Write {
		b.store.Emit("file-modified", env)
	}
}
