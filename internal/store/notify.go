package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/mdelaney/catsync/internal/events"
)

// fileWatcher observes the sidecar signal file written by
// SQLiteStore handles. Every instance sharing the database sees the
// same sidecar, which gives cross-instance change notification
// without polling the tables.
type fileWatcher struct {
	fs      *fsnotify.Watcher
	path    string
	changes chan Change
	done    chan struct{}
	logger  *events.Logger
}

func newFileWatcher(path string, logger *events.Logger) (*fileWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	// Watch the directory: the sidecar may not exist yet.
	if err := fs.Add(filepath.Dir(path)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &fileWatcher{
		fs:      fs,
		path:    path,
		changes: make(chan Change, 16),
		done:    make(chan struct{}),
		logger:  logger.WithField("component", "store_watcher"),
	}

	go w.loop()
	return w, nil
}

func (w *fileWatcher) loop() {
	defer close(w.changes)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if change, ok := w.readSignal(); ok {
				select {
				case w.changes <- change:
				default:
					// Receiver is behind; it will reload on the
					// next signal anyway.
				}
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *fileWatcher) readSignal() (Change, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to read change signal")
		return Change{}, false
	}

	parts := strings.Split(string(data), "\x1f")
	if len(parts) < 2 {
		return Change{}, false
	}

	return Change{Origin: parts[0], Kind: Kind(parts[1])}, true
}

// Changes returns the change stream.
func (w *fileWatcher) Changes() <-chan Change {
	return w.changes
}

// Close stops watching.
func (w *fileWatcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
