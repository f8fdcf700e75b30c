package app

import (
	"context"
	"fmt"
	"time"

	"prayer_notification_bot/internal/domain/delivery"
	"prayer_notification_bot/internal/domain/schedule"
	"prayer_notification_bot/internal/domain/subscriber"

	"github.com/sirupsen/logrus"
)

// ErrNoSchedule is the one operational fault the engine surfaces: no schedule
// has been published for today, so there is nothing to build or reschedule.
var ErrNoSchedule = fmt.Errorf("no schedule published for today")

// NotificationService drives the scheduling and delivery engine. The daily
// build, the dispatch tick and the housekeeping pass are invoked by the cron
// scheduler; RescheduleFor is invoked synchronously after a lead-time change
// so the next tick always observes the updated queue.
type NotificationService interface {
	// BuildDailyQueue fully rebuilds the work queue from today's schedule
	// and the current subscriber set. Runs once at startup and once daily
	// shortly after midnight.
	BuildDailyQueue(ctx context.Context) error
	// RescheduleFor replaces one recipient's still-future reminder items
	// after their lead time changed. At-occasion items are untouched.
	RescheduleFor(ctx context.Context, recipientID int64) error
	// DispatchDue delivers every queued item whose send time equals the
	// current clock minute. Overlapping invocations are skipped, not queued.
	DispatchDue(ctx context.Context) error
	// Housekeep purges idempotency ledger entries older than a day.
	Housekeep(ctx context.Context)
}

// NotificationServiceImpl implements NotificationService on top of the cached
// loader, the work queue and the idempotency ledger.
type NotificationServiceImpl struct {
	loader      *CachedLoader
	subscribers *SubscriberService
	queue       *WorkQueue
	ledger      *Ledger
	sink        delivery.Sink
	loc         *time.Location
	clock       Clock
	logger      *logrus.Entry

	sendTimeout     time.Duration
	sendConcurrency int

	dispatching chan struct{} // 1-token guard against overlapping ticks
}

func NewNotificationService(
	loader *CachedLoader,
	subscribers *SubscriberService,
	queue *WorkQueue,
	ledger *Ledger,
	sink delivery.Sink,
	loc *time.Location,
	clock Clock,
	logger *logrus.Entry,
	sendTimeout time.Duration,
	sendConcurrency int,
) *NotificationServiceImpl {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if sendConcurrency <= 0 {
		sendConcurrency = 8
	}
	guard := make(chan struct{}, 1)
	guard <- struct{}{}
	return &NotificationServiceImpl{
		loader:          loader,
		subscribers:     subscribers,
		queue:           queue,
		ledger:          ledger,
		sink:            sink,
		loc:             loc,
		clock:           clock,
		logger:          logger,
		sendTimeout:     sendTimeout,
		sendConcurrency: sendConcurrency,
		dispatching:     guard,
	}
}

// BuildDailyQueue resolves the current civil date and expands today's
// occasions across all subscribers into a flat, time-sorted queue. A missing
// schedule clears the queue entirely: yesterday's stale items must not
// survive into a day that has no published times.
func (s *NotificationServiceImpl) BuildDailyQueue(ctx context.Context) error {
	now := s.clock().In(s.loc)
	date := now.Format(schedule.DateLayout)
	logCtx := s.logger.WithField("date", date)

	day, ok, err := s.loader.ScheduleFor(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load schedule for daily build: %w", err)
	}
	if !ok {
		s.queue.ReplaceAll(nil)
		logCtx.Error("No schedule published for today, work queue cleared")
		return ErrNoSchedule
	}

	subs, err := s.loader.Subscribers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscribers for daily build: %w", err)
	}

	var items []WorkItem
	for _, sub := range subs {
		items = append(items, s.itemsForSubscriber(date, day, sub, "")...)
	}
	s.queue.ReplaceAll(items)

	logCtx.WithFields(logrus.Fields{
		"subscribers": len(subs),
		"items":       s.queue.Len(),
	}).Info("Daily work queue built")
	return nil
}

// RescheduleFor surgically replaces the recipient's still-future reminder
// items using their current lead time. If no schedule exists for today the
// queue is left untouched: destroying stale-but-valid reminders on a read
// fault would be worse than keeping them.
func (s *NotificationServiceImpl) RescheduleFor(ctx context.Context, recipientID int64) error {
	now := s.clock().In(s.loc)
	date := now.Format(schedule.DateLayout)
	minute := now.Format("15:04")
	logCtx := s.logger.WithFields(logrus.Fields{"recipient": recipientID, "date": date})

	day, ok, err := s.loader.ScheduleFor(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load schedule for reschedule: %w", err)
	}
	if !ok {
		logCtx.Error("No schedule published for today, reschedule aborted without queue mutation")
		return ErrNoSchedule
	}

	sub, found, err := s.subscribers.Get(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("failed to load subscriber for reschedule: %w", err)
	}
	if !found {
		return ErrSubscriberNotFound
	}

	replacements := remindersOnly(s.itemsForSubscriber(date, day, sub, minute))
	s.queue.RescheduleReminders(recipientID, minute, replacements)

	logCtx.WithFields(logrus.Fields{
		"lead_minutes": sub.Settings.LeadMinutes,
		"reminders":    len(replacements),
	}).Info("Rescheduled future reminders")
	return nil
}

// itemsForSubscriber derives the at-occasion and reminder items for one
// subscriber over the five occasions in fixed order. When afterMinute is
// non-empty (the reschedule path) only strictly-future items are produced.
// Reminders whose subtraction would cross midnight are skipped.
func (s *NotificationServiceImpl) itemsForSubscriber(date string, day schedule.Day, sub subscriber.Subscriber, afterMinute string) []WorkItem {
	var items []WorkItem
	for _, key := range schedule.Order {
		at, present := day.Occasions[key]
		if !present {
			continue
		}
		if !schedule.ValidHHMM(at) {
			s.logger.WithFields(logrus.Fields{"occasion": key, "time": at}).
				Warn("Skipping occasion with malformed time")
			continue
		}
		if afterMinute == "" || at > afterMinute {
			items = append(items, WorkItem{
				Recipient: sub.ID,
				SendAt:    at,
				Payload:   occasionAlertText(key, at),
				DedupKey:  dedupKey(date, key, sub.ID, 0),
				Offset:    0,
			})
		}

		lead := sub.Settings.LeadMinutes
		if lead <= 0 {
			continue
		}
		remindAt, sameDay := schedule.MinusMinutes(at, lead)
		if !sameDay {
			s.logger.WithFields(logrus.Fields{
				"occasion": key, "time": at, "lead_minutes": lead,
			}).Warn("Reminder would cross midnight, skipping")
			continue
		}
		if afterMinute != "" && (remindAt <= afterMinute || at <= afterMinute) {
			continue
		}
		items = append(items, WorkItem{
			Recipient: sub.ID,
			SendAt:    remindAt,
			Payload:   reminderText(key, at, lead),
			DedupKey:  dedupKey(date, key, sub.ID, lead),
			Offset:    lead,
		})
	}
	return items
}

func remindersOnly(items []WorkItem) []WorkItem {
	out := items[:0]
	for _, it := range items {
		if it.Offset != 0 {
			out = append(out, it)
		}
	}
	return out
}

// dedupKey is stable across rebuilds: date, occasion, recipient and
// notification kind (offset minutes, 0 for the at-occasion alert) fully
// identify one delivery.
func dedupKey(date string, key schedule.Key, recipient int64, offset int) string {
	return fmt.Sprintf("%s:%s:%d:%d", date, key, recipient, offset)
}

func occasionAlertText(key schedule.Key, at string) string {
	return fmt.Sprintf("🕌 Наступило время намаза %s (%s).", schedule.Title(key), at)
}

func reminderText(key schedule.Key, at string, lead int) string {
	return fmt.Sprintf("⏰ Через %d мин. наступит время намаза %s (в %s).", lead, schedule.Title(key), at)
}
