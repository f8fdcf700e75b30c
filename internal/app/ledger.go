package app

import (
	"sync"
	"time"
)

// LedgerMaxAge is how long a delivered dedup key is remembered. One calendar
// day is enough: keys embed the date, so yesterday's keys can never collide
// with today's items.
const LedgerMaxAge = 24 * time.Hour

// Ledger records dedup keys that have already been handled, so a tick
// overlapping the same clock minute never re-delivers. It is process-local
// and bounded by periodic purging.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]time.Time)}
}

// Seen reports whether key has already been recorded.
func (l *Ledger) Seen(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok
}

// Record marks key as handled at the given time.
func (l *Ledger) Record(key string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = at
}

// Purge drops entries older than LedgerMaxAge and returns how many were removed.
func (l *Ledger) Purge(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	purged := 0
	for key, at := range l.entries {
		if now.Sub(at) > LedgerMaxAge {
			delete(l.entries, key)
			purged++
		}
	}
	return purged
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
