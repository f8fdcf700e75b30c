package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_ReplaceAllSortsAndDeduplicates(t *testing.T) {
	q := NewWorkQueue()
	q.ReplaceAll([]WorkItem{
		{Recipient: 1, SendAt: "12:30", DedupKey: "a"},
		{Recipient: 1, SendAt: "05:20", DedupKey: "b"},
		{Recipient: 2, SendAt: "05:20", DedupKey: "b"}, // duplicate key, dropped
		{Recipient: 1, SendAt: "09:00", DedupKey: "c"},
	})

	items := q.Snapshot()
	require.Len(t, items, 3)
	assert.Equal(t, "05:20", items[0].SendAt)
	assert.Equal(t, "09:00", items[1].SendAt)
	assert.Equal(t, "12:30", items[2].SendAt)

	seen := map[string]bool{}
	for _, it := range items {
		assert.False(t, seen[it.DedupKey], "dedup key %s appears twice", it.DedupKey)
		seen[it.DedupKey] = true
	}
}

func TestWorkQueue_DueAtExactMinuteOnly(t *testing.T) {
	q := NewWorkQueue()
	q.ReplaceAll([]WorkItem{
		{Recipient: 1, SendAt: "05:29", DedupKey: "a"},
		{Recipient: 1, SendAt: "05:30", DedupKey: "b"},
		{Recipient: 2, SendAt: "05:30", DedupKey: "c"},
		{Recipient: 1, SendAt: "05:31", DedupKey: "d"},
	})

	due := q.DueAt("05:30")
	require.Len(t, due, 2)
	for _, it := range due {
		assert.Equal(t, "05:30", it.SendAt)
	}
}

func TestWorkQueue_RemoveMinuteDropsSentAndUnsent(t *testing.T) {
	q := NewWorkQueue()
	q.ReplaceAll([]WorkItem{
		{Recipient: 1, SendAt: "05:30", DedupKey: "a"},
		{Recipient: 2, SendAt: "05:30", DedupKey: "b"},
		{Recipient: 1, SendAt: "05:31", DedupKey: "c"},
	})

	q.RemoveMinute("05:30")
	items := q.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, "05:31", items[0].SendAt)
}

func TestWorkQueue_RemoveRecipientPurgesAllKinds(t *testing.T) {
	q := NewWorkQueue()
	q.ReplaceAll([]WorkItem{
		{Recipient: 1, SendAt: "05:20", DedupKey: "a", Offset: 10},
		{Recipient: 1, SendAt: "05:30", DedupKey: "b", Offset: 0},
		{Recipient: 2, SendAt: "05:30", DedupKey: "c", Offset: 0},
	})

	q.RemoveRecipient(1)
	items := q.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Recipient)
}

func TestWorkQueue_RescheduleRemindersSurgical(t *testing.T) {
	q := NewWorkQueue()
	q.ReplaceAll([]WorkItem{
		{Recipient: 1, SendAt: "06:55", DedupKey: "r1-past", Offset: 5},    // past reminder, untouched
		{Recipient: 1, SendAt: "07:55", DedupKey: "r1-future", Offset: 5},  // future reminder, replaced
		{Recipient: 1, SendAt: "08:00", DedupKey: "r1-occasion", Offset: 0},
		{Recipient: 2, SendAt: "07:55", DedupKey: "r2-future", Offset: 5}, // other recipient, untouched
	})

	q.RescheduleReminders(1, "07:30", []WorkItem{
		{Recipient: 1, SendAt: "07:45", DedupKey: "r1-new", Offset: 15},
	})

	items := q.Snapshot()
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.DedupKey)
	}
	assert.ElementsMatch(t, []string{"r1-past", "r1-occasion", "r2-future", "r1-new"}, keys)
}
