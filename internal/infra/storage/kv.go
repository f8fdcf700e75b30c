package storage

import (
	"context"
	"fmt"
)

// Document keys used by the engine. Each key names one JSON document.
const (
	KeySchedule    = "schedule"
	KeySubscribers = "subscribers"
)

// ErrNotFound is returned by Load when no document exists for the key.
// The cached loader treats it as "empty", never as a fault.
var ErrNotFound = fmt.Errorf("document not found")

// KV is the opaque persistence boundary of the engine: whole JSON documents
// addressed by key. Backends are the on-disk file store and Postgres.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, doc []byte) error
}
