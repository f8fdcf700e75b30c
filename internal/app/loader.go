package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"prayer_notification_bot/internal/domain/schedule"
	"prayer_notification_bot/internal/domain/subscriber"
	"prayer_notification_bot/internal/infra/storage"

	"github.com/sirupsen/logrus"
)

// Clock supplies the current time. Injected so the engine is deterministic
// under test; production wiring passes time.Now.
type Clock func() time.Time

// DefaultCacheTTL bounds how stale a cached document may be before the next
// read goes back to the store.
const DefaultCacheTTL = 5 * time.Minute

// saveEchoWindow suppresses cache invalidations that arrive right after our
// own save. The file backend renames onto the watched path, so every save
// echoes back as a change event; honoring it would throw away the optimistic
// cache update and force a pointless re-read.
const saveEchoWindow = 2 * time.Second

// CachedLoader is a TTL-bounded read-through cache over the two persisted
// documents (schedule, subscribers). All store-read faults are absorbed here
// and normalized to safe empty defaults: callers never see "store missing".
//
// Reads also repair the subscriber document in place: the legacy format kept
// bare numeric chat IDs, and hand-edited files may lack settings. Repaired
// values are persisted back immediately (write-back repair).
//
// A single mutex guards both cache entries and is held across reloads, so at
// most one store read per document is in flight. The loader does not
// serialize read-modify-write sequences spanning a load and a save; callers
// owning such a sequence (the subscriber service) hold their own critical
// section.
type CachedLoader struct {
	store  storage.KV
	ttl    time.Duration
	clock  Clock
	logger *logrus.Entry

	mu                  sync.Mutex
	scheduleDays        []schedule.Day
	scheduleLoadedAt    time.Time
	scheduleSavedAt     time.Time
	scheduleValid       bool
	subscriberSet       []subscriber.Subscriber
	subscribersLoadedAt time.Time
	subscribersSavedAt  time.Time
	subscribersValid    bool
}

func NewCachedLoader(store storage.KV, ttl time.Duration, clock Clock, logger *logrus.Entry) *CachedLoader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedLoader{store: store, ttl: ttl, clock: clock, logger: logger}
}

// Invalidate drops the cache entry for one document key, forcing the next
// read to hit the store. Used by the file watcher. Invalidations inside
// saveEchoWindow of our own save are ignored: those are echoes of the write
// we just cached, not external changes.
func (l *CachedLoader) Invalidate(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	switch key {
	case storage.KeySchedule:
		if now.Sub(l.scheduleSavedAt) < saveEchoWindow {
			return
		}
		l.scheduleValid = false
	case storage.KeySubscribers:
		if now.Sub(l.subscribersSavedAt) < saveEchoWindow {
			return
		}
		l.subscribersValid = false
	}
}

// Schedules returns all published day schedules, from cache when fresh.
// An absent document is an empty set, not an error; an unparseable document
// is reset to an empty set and rewritten so the corruption does not persist.
func (l *CachedLoader) Schedules(ctx context.Context) ([]schedule.Day, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if l.scheduleValid && now.Sub(l.scheduleLoadedAt) < l.ttl {
		return l.scheduleDays, nil
	}

	days, err := l.readSchedules(ctx)
	if err != nil {
		return nil, err
	}
	l.scheduleDays = days
	l.scheduleLoadedAt = now
	l.scheduleValid = true
	return days, nil
}

func (l *CachedLoader) readSchedules(ctx context.Context) ([]schedule.Day, error) {
	doc, err := l.store.Load(ctx, storage.KeySchedule)
	if err != nil {
		if err == storage.ErrNotFound {
			return []schedule.Day{}, nil
		}
		return nil, fmt.Errorf("failed to load schedule document: %w", err)
	}

	var days []schedule.Day
	if err := json.Unmarshal(doc, &days); err != nil {
		l.logger.WithError(err).Error("Schedule document is corrupt, resetting to empty")
		if saveErr := l.writeScheduleDoc(ctx, []schedule.Day{}); saveErr != nil {
			return nil, saveErr
		}
		return []schedule.Day{}, nil
	}
	return days, nil
}

// ScheduleFor returns the day schedule for a calendar date, if published.
func (l *CachedLoader) ScheduleFor(ctx context.Context, date string) (schedule.Day, bool, error) {
	days, err := l.Schedules(ctx)
	if err != nil {
		return schedule.Day{}, false, err
	}
	for _, d := range days {
		if d.Date == date {
			return d, true, nil
		}
	}
	return schedule.Day{}, false, nil
}

// SaveSchedules persists a full replacement of the schedule document and
// updates the cache optimistically so the next read observes it immediately,
// independent of TTL.
func (l *CachedLoader) SaveSchedules(ctx context.Context, days []schedule.Day) error {
	if days == nil {
		days = []schedule.Day{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeScheduleDoc(ctx, days)
}

// writeScheduleDoc persists and caches; callers hold l.mu.
func (l *CachedLoader) writeScheduleDoc(ctx context.Context, days []schedule.Day) error {
	doc, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to encode schedule document: %w", err)
	}
	if err := l.store.Save(ctx, storage.KeySchedule, doc); err != nil {
		return err
	}
	l.scheduleDays = days
	l.scheduleLoadedAt = l.clock()
	l.scheduleSavedAt = l.scheduleLoadedAt
	l.scheduleValid = true
	return nil
}

// Subscribers returns all subscriber records, from cache when fresh. An
// absent document is initialized to an empty set and persisted; a corrupt or
// partially invalid document is repaired and written back before returning.
func (l *CachedLoader) Subscribers(ctx context.Context) ([]subscriber.Subscriber, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if l.subscribersValid && now.Sub(l.subscribersLoadedAt) < l.ttl {
		return l.subscriberSet, nil
	}

	subs, err := l.readSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	l.subscriberSet = subs
	l.subscribersLoadedAt = now
	l.subscribersValid = true
	return subs, nil
}

func (l *CachedLoader) readSubscribers(ctx context.Context) ([]subscriber.Subscriber, error) {
	doc, err := l.store.Load(ctx, storage.KeySubscribers)
	if err != nil {
		if err == storage.ErrNotFound {
			l.logger.Info("Subscriber document absent, initializing empty set")
			if saveErr := l.writeSubscriberDoc(ctx, []subscriber.Subscriber{}); saveErr != nil {
				return nil, saveErr
			}
			return []subscriber.Subscriber{}, nil
		}
		return nil, fmt.Errorf("failed to load subscriber document: %w", err)
	}

	subs, corrections, err := normalizeSubscribers(doc)
	if err != nil {
		l.logger.WithError(err).Error("Subscriber document is corrupt, resetting to empty")
		if saveErr := l.writeSubscriberDoc(ctx, []subscriber.Subscriber{}); saveErr != nil {
			return nil, saveErr
		}
		return []subscriber.Subscriber{}, nil
	}
	if corrections > 0 {
		l.logger.WithField("corrections", corrections).Warn("Repaired subscriber document, writing back")
		if saveErr := l.writeSubscriberDoc(ctx, subs); saveErr != nil {
			return nil, saveErr
		}
	}
	return subs, nil
}

// SaveSubscribers persists the subscriber set, dropping entries without a
// valid ID, and updates the cache optimistically.
func (l *CachedLoader) SaveSubscribers(ctx context.Context, subs []subscriber.Subscriber) error {
	valid := make([]subscriber.Subscriber, 0, len(subs))
	for _, s := range subs {
		if s.ID == 0 {
			l.logger.Warn("Dropping subscriber entry without an ID on save")
			continue
		}
		valid = append(valid, s)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeSubscriberDoc(ctx, valid)
}

// writeSubscriberDoc persists and caches; callers hold l.mu.
func (l *CachedLoader) writeSubscriberDoc(ctx context.Context, subs []subscriber.Subscriber) error {
	doc, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to encode subscriber document: %w", err)
	}
	if err := l.store.Save(ctx, storage.KeySubscribers, doc); err != nil {
		return err
	}
	l.subscriberSet = subs
	l.subscribersLoadedAt = l.clock()
	l.subscribersSavedAt = l.subscribersLoadedAt
	l.subscribersValid = true
	return nil
}

// normalizeSubscribers decodes the persisted subscriber array, accepting the
// legacy form (bare numeric chat IDs) alongside the current object form.
// It returns the normalized set plus how many entries needed correction.
func normalizeSubscribers(doc []byte) ([]subscriber.Subscriber, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, 0, fmt.Errorf("subscriber document is not a JSON array: %w", err)
	}

	type diskRecord struct {
		ID       int64                `json:"id"`
		Settings *subscriber.Settings `json:"settings"`
	}

	subs := make([]subscriber.Subscriber, 0, len(raw))
	corrections := 0
	for _, entry := range raw {
		var legacyID int64
		if err := json.Unmarshal(entry, &legacyID); err == nil {
			if legacyID == 0 {
				corrections++
				continue
			}
			subs = append(subs, subscriber.Subscriber{ID: legacyID, Settings: subscriber.DefaultSettings()})
			corrections++
			continue
		}

		var rec diskRecord
		if err := json.Unmarshal(entry, &rec); err != nil || rec.ID == 0 {
			corrections++
			continue
		}
		settings := subscriber.DefaultSettings()
		if rec.Settings == nil {
			corrections++
		} else if !subscriber.ValidLeadMinutes(rec.Settings.LeadMinutes) {
			corrections++
		} else {
			settings = *rec.Settings
		}
		subs = append(subs, subscriber.Subscriber{ID: rec.ID, Settings: settings})
	}
	return subs, corrections, nil
}
