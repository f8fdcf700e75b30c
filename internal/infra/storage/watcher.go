package storage

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher observes the file backend's data directory and reports which
// document key changed, so the cached loader can invalidate its entry before
// the TTL would. Only meaningful for the file backend: the schedule document
// in particular may be replaced externally (e.g. copied over by an operator).
type Watcher struct {
	fs     *fsnotify.Watcher
	store  *FileKV
	logger *logrus.Entry
}

func NewWatcher(store *FileKV, logger *logrus.Entry) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(store.dir); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{fs: fs, store: store, logger: logger}, nil
}

// Run blocks until ctx is done, calling onChange with the document key for
// every write/create/rename of a known document file. Temp files from atomic
// saves are ignored.
func (w *Watcher) Run(ctx context.Context, onChange func(key string)) {
	defer w.fs.Close()
	known := map[string]string{
		w.store.Path(KeySchedule):    KeySchedule,
		w.store.Path(KeySubscribers): KeySubscribers,
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := known[filepath.Clean(ev.Name)]
			if !ok {
				continue
			}
			w.logger.WithFields(logrus.Fields{"key": key, "op": ev.Op.String()}).
				Debug("Data file changed on disk, invalidating cache entry")
			onChange(key)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("File watcher error")
		}
	}
}
