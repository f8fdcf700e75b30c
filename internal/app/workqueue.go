package app

import (
	"sort"
	"sync"
)

// WorkItem is one pending notification: deliver Payload to Recipient when the
// clock reaches SendAt. Offset distinguishes the at-occasion alert (0) from a
// reminder (the lead minutes); the same value is baked into DedupKey, which is
// stable across queue rebuilds and unique per (day, occasion, recipient, kind).
type WorkItem struct {
	Recipient int64
	SendAt    string // "HH:MM", civil time in the engine's fixed timezone
	Payload   string
	DedupKey  string
	Offset    int
}

// WorkQueue is the engine-owned set of pending notifications. It is rebuilt
// from source data daily, so nothing here is persisted. Every compound
// mutation is a single method executed under the mutex: the builder, the
// rescheduler and the dispatcher all interleave through here.
//
// SendAt values are zero-padded "HH:MM", so lexical order is chronological
// order and plain string comparison is used throughout.
type WorkQueue struct {
	mu    sync.Mutex
	items []WorkItem
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{}
}

// ReplaceAll swaps in a freshly built day's items, dropping whatever was
// queued before. Items are sorted by send time; duplicate dedup keys are
// discarded (first occurrence wins).
func (q *WorkQueue) ReplaceAll(items []WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]WorkItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.DedupKey]; dup {
			continue
		}
		seen[it.DedupKey] = struct{}{}
		next = append(next, it)
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].SendAt < next[j].SendAt })
	q.items = next
}

// RescheduleReminders atomically replaces one recipient's still-future
// reminder items. At-occasion items (Offset == 0) and items at or before
// nowMinute are left untouched; the latter are cleaned up by the dispatcher.
func (q *WorkQueue) RescheduleReminders(recipient int64, nowMinute string, replacements []WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	seen := make(map[string]struct{}, len(q.items))
	for _, it := range q.items {
		if it.Recipient == recipient && it.Offset != 0 && it.SendAt > nowMinute {
			continue
		}
		kept = append(kept, it)
		seen[it.DedupKey] = struct{}{}
	}
	q.items = kept
	for _, it := range replacements {
		if _, dup := seen[it.DedupKey]; dup {
			continue
		}
		seen[it.DedupKey] = struct{}{}
		q.items = append(q.items, it)
	}
	sort.SliceStable(q.items, func(i, j int) bool { return q.items[i].SendAt < q.items[j].SendAt })
}

// DueAt returns copies of every item whose send time equals minute exactly.
func (q *WorkQueue) DueAt(minute string) []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []WorkItem
	for _, it := range q.items {
		if it.SendAt == minute {
			due = append(due, it)
		}
	}
	return due
}

// RemoveMinute drops every item scheduled for the given minute, delivered or
// not. A send missed in its minute is never reattempted.
func (q *WorkQueue) RemoveMinute(minute string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, it := range q.items {
		if it.SendAt != minute {
			kept = append(kept, it)
		}
	}
	q.items = kept
}

// RemoveRecipient purges every item for one recipient, any kind.
func (q *WorkQueue) RemoveRecipient(recipient int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, it := range q.items {
		if it.Recipient != recipient {
			kept = append(kept, it)
		}
	}
	q.items = kept
}

// Snapshot returns a copy of all pending items in send-time order.
func (q *WorkQueue) Snapshot() []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]WorkItem, len(q.items))
	copy(out, q.items)
	return out
}

func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
