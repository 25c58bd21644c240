// Package hotreload provides a small fsnotify-backed file watcher shared
// by every component that needs to pick up a config change without a
// restart.
package hotreload

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/wtthornton/homeiq-insight/pkg/shared/logging"
)

// FileWatcher watches a single file path and invokes onChange whenever
// fsnotify reports a write or rename against it (editors commonly replace
// a file via rename-into-place on save).
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	log     *logrus.Logger
}

// NewFileWatcher opens an fsnotify watch on path's parent directory (so a
// rename-replace save is still observed) and returns a FileWatcher ready
// for Watch.
func NewFileWatcher(path string, log *logrus.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dirOf(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &FileWatcher{watcher: w, path: path, log: log}, nil
}

// Watch blocks, calling onChange every time the watched path is written
// or renamed, until ctx is cancelled or Close is called. Errors from the
// underlying watcher are logged and never stop the loop (a hot-reload
// watcher failing silently on one event is preferable to it exiting and
// leaving the process on stale config forever).
func (w *FileWatcher) Watch(ctx context.Context, onChange func()) {
	fields := logging.NewFields().Component("hotreload").Operation("watch").Resource("file", w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithFields(fields.Error(err).Logrus()).Warn("file watcher error")
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
