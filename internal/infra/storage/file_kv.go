package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileKV persists each document as a JSON file under a data directory:
// <dir>/<key>.json. Writes go through a temp file plus rename so a crashed
// write never leaves a half-written document behind.
type FileKV struct {
	dir string
}

func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &FileKV{dir: dir}, nil
}

// Path returns the on-disk location of a document, used by the watcher to
// match fsnotify events back to keys.
func (s *FileKV) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileKV) Load(_ context.Context, key string) ([]byte, error) {
	doc, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading document %s: %w", key, err)
	}
	return doc, nil
}

func (s *FileKV) Save(_ context.Context, key string, doc []byte) error {
	path := s.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return fmt.Errorf("error writing document %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error replacing document %s: %w", key, err)
	}
	return nil
}
