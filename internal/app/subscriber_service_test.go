package app

import (
	"context"
	"testing"
	"time"

	"prayer_notification_bot/internal/domain/subscriber"
	"prayer_notification_bot/internal/infra/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubscriberFixture() (*SubscriberService, *fakeKV, *WorkQueue) {
	kv := newFakeKV()
	clock := newTestClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	loader := NewCachedLoader(kv, 5*time.Minute, clock.Now, testLogger())
	queue := NewWorkQueue()
	return NewSubscriberService(loader, queue, testLogger()), kv, queue
}

func TestSubscriberService_SubscribeAndDuplicate(t *testing.T) {
	svc, _, _ := newSubscriberFixture()

	sub, err := svc.Subscribe(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sub.ID)
	assert.Equal(t, subscriber.DefaultLeadMinutes, sub.Settings.LeadMinutes)

	_, err = svc.Subscribe(context.Background(), 42)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestSubscriberService_UnsubscribePurgesQueue(t *testing.T) {
	svc, _, queue := newSubscriberFixture()
	_, err := svc.Subscribe(context.Background(), 42)
	require.NoError(t, err)
	queue.ReplaceAll([]WorkItem{
		{Recipient: 42, SendAt: "08:00", DedupKey: "a"},
		{Recipient: 7, SendAt: "08:00", DedupKey: "b"},
	})

	require.NoError(t, svc.Unsubscribe(context.Background(), 42))

	_, found, err := svc.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, found)
	items := queue.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].Recipient)

	assert.ErrorIs(t, svc.Unsubscribe(context.Background(), 42), ErrSubscriberNotFound)
}

func TestSubscriberService_SetLeadMinutesValidation(t *testing.T) {
	svc, _, _ := newSubscriberFixture()
	_, err := svc.Subscribe(context.Background(), 42)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetLeadMinutes(context.Background(), 42, 0), ErrInvalidLeadMinutes)
	assert.ErrorIs(t, svc.SetLeadMinutes(context.Background(), 42, 61), ErrInvalidLeadMinutes)
	assert.ErrorIs(t, svc.SetLeadMinutes(context.Background(), 7, 15), ErrSubscriberNotFound)

	require.NoError(t, svc.SetLeadMinutes(context.Background(), 42, 15))
	sub, found, err := svc.Get(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 15, sub.Settings.LeadMinutes)
}

func TestSubscriberService_EvictToleratesMissing(t *testing.T) {
	svc, kv, _ := newSubscriberFixture()
	_, err := svc.Subscribe(context.Background(), 42)
	require.NoError(t, err)

	require.NoError(t, svc.Evict(context.Background(), 42))
	assert.JSONEq(t, "[]", string(kv.doc(storage.KeySubscribers)))

	// Evicting an already-gone recipient is not an error.
	assert.NoError(t, svc.Evict(context.Background(), 42))
}
