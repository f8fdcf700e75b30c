package app

import (
	"context"
	"errors"
	"sync"

	"prayer_notification_bot/internal/domain/delivery"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DispatchDue is the per-tick evaluation. Items are matched by exact minute
// equality, not a catch-up window: if the process was down when an item's
// minute passed, that notification is permanently missed. This is the
// intended trade-off; it prevents a backlog of stale alerts from all firing
// at once after a pause.
func (s *NotificationServiceImpl) DispatchDue(ctx context.Context) error {
	select {
	case <-s.dispatching:
		defer func() { s.dispatching <- struct{}{} }()
	default:
		s.logger.Debug("Previous dispatch tick still running, skipping this one")
		return nil
	}

	now := s.clock().In(s.loc)
	minute := now.Format("15:04")
	due := s.queue.DueAt(minute)
	if len(due) == 0 {
		return nil
	}
	logCtx := s.logger.WithFields(logrus.Fields{"minute": minute, "due": len(due)})
	logCtx.Info("Dispatching due notifications")

	var (
		mu      sync.Mutex
		sent    int
		deduped int
		failed  int
	)
	rejected := make(map[int64]bool)

	// Fan out per item so one slow or failing recipient never blocks the
	// rest of the minute. Goroutines only share the tally under mu.
	g := new(errgroup.Group)
	g.SetLimit(s.sendConcurrency)
	for _, item := range due {
		if s.ledger.Seen(item.DedupKey) {
			deduped++
			continue
		}
		item := item
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
			defer cancel()
			err := s.sink.Send(sendCtx, item.Recipient, item.Payload)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				s.ledger.Record(item.DedupKey, now)
				sent++
			case errors.Is(err, delivery.ErrPermanentRejection):
				rejected[item.Recipient] = true
				// Record anyway: this item is handled, never to be resent.
				s.ledger.Record(item.DedupKey, now)
				s.logger.WithFields(logrus.Fields{
					"recipient": item.Recipient, "dedup_key": item.DedupKey,
				}).Warn("Recipient permanently rejected delivery, will be evicted")
			default:
				failed++
				s.logger.WithError(err).WithFields(logrus.Fields{
					"recipient": item.Recipient, "dedup_key": item.DedupKey,
				}).Error("Delivery failed, item dropped for this occasion")
			}
			return nil
		})
	}
	g.Wait()

	// Evict recipients who blocked the channel: remove them from the store
	// and purge every remaining queue item of theirs, any kind.
	for recipient := range rejected {
		if err := s.subscribers.Evict(ctx, recipient); err != nil {
			s.logger.WithError(err).WithField("recipient", recipient).
				Error("Failed to evict rejected recipient from store")
		}
		s.queue.RemoveRecipient(recipient)
	}

	// The minute is spent: delivered or not, its items are never retried.
	s.queue.RemoveMinute(minute)

	logCtx.WithFields(logrus.Fields{
		"sent": sent, "deduped": deduped, "failed": failed, "evicted": len(rejected),
	}).Info("Dispatch tick finished")
	return nil
}

// Housekeep bounds ledger memory on a cadence independent of delivery
// activity.
func (s *NotificationServiceImpl) Housekeep(_ context.Context) {
	purged := s.ledger.Purge(s.clock())
	if purged > 0 {
		s.logger.WithField("purged", purged).Info("Purged expired ledger entries")
	}
	s.logger.WithFields(logrus.Fields{
		"ledger_size": s.ledger.Len(),
		"queue_size":  s.queue.Len(),
	}).Debug("Housekeeping pass complete")
}
