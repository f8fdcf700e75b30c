package app

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"prayer_notification_bot/internal/domain/schedule"
	"prayer_notification_bot/internal/domain/subscriber"
	"prayer_notification_bot/internal/infra/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV is an in-memory document store counting loads and saves.
type fakeKV struct {
	mu    sync.Mutex
	docs  map[string][]byte
	loads map[string]int
	saves map[string]int
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		docs:  make(map[string][]byte),
		loads: make(map[string]int),
		saves: make(map[string]int),
	}
}

func (f *fakeKV) Load(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[key]++
	doc, ok := f.docs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func (f *fakeKV) Save(_ context.Context, key string, doc []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves[key]++
	f.docs[key] = append([]byte(nil), doc...)
	return nil
}

func (f *fakeKV) set(key, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = []byte(doc)
}

func (f *fakeKV) doc(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[key]
}

func (f *fakeKV) loadCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[key]
}

// testClock is a settable clock for deterministic cache and queue behavior.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestLoader_SchedulesAbsentIsEmptyNotError(t *testing.T) {
	kv := newFakeKV()
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	days, err := loader.Schedules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, days)
	// Schedule absence is not repaired by persisting anything.
	assert.Equal(t, 0, kv.saves[storage.KeySchedule])
}

func TestLoader_SubscribersAbsentInitializesEmptySet(t *testing.T) {
	kv := newFakeKV()
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	subs, err := loader.Subscribers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.JSONEq(t, "[]", string(kv.doc(storage.KeySubscribers)))
}

func TestLoader_CacheHitWithinTTL(t *testing.T) {
	kv := newFakeKV()
	kv.set(storage.KeySchedule, `[{"date":"2024-01-01","occasions":{"fajr":"05:30"}}]`)
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	_, err := loader.Schedules(context.Background())
	require.NoError(t, err)
	clock.Advance(4 * time.Minute)
	_, err = loader.Schedules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, kv.loadCount(storage.KeySchedule))

	clock.Advance(2 * time.Minute) // past the TTL now
	_, err = loader.Schedules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, kv.loadCount(storage.KeySchedule))
}

func TestLoader_CorruptScheduleResetAndRewritten(t *testing.T) {
	kv := newFakeKV()
	kv.set(storage.KeySchedule, `{definitely not an array`)
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	days, err := loader.Schedules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, days)
	assert.JSONEq(t, "[]", string(kv.doc(storage.KeySchedule)))
}

func TestLoader_LegacySubscribersNormalizedAndWrittenBack(t *testing.T) {
	kv := newFakeKV()
	kv.set(storage.KeySubscribers,
		`[123, {"id":42,"settings":{"leadMinutes":5}}, {"settings":{"leadMinutes":3}}, {"id":7}]`)
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	subs, err := loader.Subscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 3)

	byID := map[int64]subscriber.Subscriber{}
	for _, s := range subs {
		byID[s.ID] = s
	}
	assert.Equal(t, subscriber.DefaultLeadMinutes, byID[123].Settings.LeadMinutes)
	assert.Equal(t, 5, byID[42].Settings.LeadMinutes)
	assert.Equal(t, subscriber.DefaultLeadMinutes, byID[7].Settings.LeadMinutes)

	// Write-back repair: the persisted document is the normalized form.
	var persisted []subscriber.Subscriber
	require.NoError(t, json.Unmarshal(kv.doc(storage.KeySubscribers), &persisted))
	assert.Len(t, persisted, 3)
}

func TestLoader_CleanSubscribersNotRewritten(t *testing.T) {
	kv := newFakeKV()
	kv.set(storage.KeySubscribers, `[{"id":42,"settings":{"leadMinutes":5}}]`)
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	_, err := loader.Subscribers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, kv.saves[storage.KeySubscribers])
}

func TestLoader_SaveUpdatesCacheOptimistically(t *testing.T) {
	kv := newFakeKV()
	kv.set(storage.KeySubscribers, `[]`)
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	_, err := loader.Subscribers(context.Background())
	require.NoError(t, err)

	require.NoError(t, loader.SaveSubscribers(context.Background(),
		[]subscriber.Subscriber{{ID: 42, Settings: subscriber.DefaultSettings()}}))

	// Clobber the backing store: the cache must still serve the saved value.
	kv.set(storage.KeySubscribers, `[]`)
	subs, err := loader.Subscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(42), subs[0].ID)
	assert.Equal(t, 1, kv.loadCount(storage.KeySubscribers))
}

func TestLoader_SaveDropsEntriesWithoutID(t *testing.T) {
	kv := newFakeKV()
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	require.NoError(t, loader.SaveSubscribers(context.Background(), []subscriber.Subscriber{
		{ID: 42, Settings: subscriber.DefaultSettings()},
		{ID: 0, Settings: subscriber.DefaultSettings()},
	}))

	var persisted []subscriber.Subscriber
	require.NoError(t, json.Unmarshal(kv.doc(storage.KeySubscribers), &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, int64(42), persisted[0].ID)
}

func TestLoader_InvalidateIgnoresEchoOfOwnSave(t *testing.T) {
	kv := newFakeKV()
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	require.NoError(t, loader.SaveSchedules(context.Background(), []schedule.Day{
		{Date: "2024-01-01", Occasions: map[schedule.Key]string{schedule.KeyFajr: "05:30"}},
	}))

	// The file watcher reports every rename, including the one our own save
	// just performed. That echo must not evict the optimistic cache entry.
	clock.Advance(100 * time.Millisecond)
	loader.Invalidate(storage.KeySchedule)

	_, err := loader.Schedules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, kv.loadCount(storage.KeySchedule))

	// A change reported well after the save is a real external edit.
	clock.Advance(saveEchoWindow)
	loader.Invalidate(storage.KeySchedule)
	_, err = loader.Schedules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, kv.loadCount(storage.KeySchedule))
}

func TestLoader_InvalidateForcesReload(t *testing.T) {
	kv := newFakeKV()
	kv.set(storage.KeySchedule, `[]`)
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())

	_, err := loader.Schedules(context.Background())
	require.NoError(t, err)

	kv.set(storage.KeySchedule, `[{"date":"2024-01-01","occasions":{"fajr":"05:30"}}]`)
	loader.Invalidate(storage.KeySchedule)

	day, ok, err := loader.ScheduleFor(context.Background(), "2024-01-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "05:30", day.Occasions[schedule.KeyFajr])
}
