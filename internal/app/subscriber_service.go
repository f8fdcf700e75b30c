package app

import (
	"context"
	"fmt"
	"sync"

	"prayer_notification_bot/internal/domain/subscriber"

	"github.com/sirupsen/logrus"
)

// Application-level errors for subscriber management.
var (
	ErrAlreadySubscribed  = fmt.Errorf("recipient is already subscribed")
	ErrSubscriberNotFound = fmt.Errorf("subscriber not found")
	ErrInvalidLeadMinutes = fmt.Errorf("lead minutes must be between %d and %d",
		subscriber.MinLeadMinutes, subscriber.MaxLeadMinutes)
)

// SubscriberService owns every read-modify-write sequence on the subscriber
// document. The cached loader does not serialize those, so a single mutex
// here is the critical section: one mutation in flight at a time.
type SubscriberService struct {
	loader *CachedLoader
	queue  *WorkQueue
	logger *logrus.Entry

	mu sync.Mutex
}

func NewSubscriberService(loader *CachedLoader, queue *WorkQueue, logger *logrus.Entry) *SubscriberService {
	return &SubscriberService{loader: loader, queue: queue, logger: logger}
}

// Get returns one subscriber record by recipient ID.
func (s *SubscriberService) Get(ctx context.Context, id int64) (subscriber.Subscriber, bool, error) {
	subs, err := s.loader.Subscribers(ctx)
	if err != nil {
		return subscriber.Subscriber{}, false, err
	}
	for _, sub := range subs {
		if sub.ID == id {
			return sub, true, nil
		}
	}
	return subscriber.Subscriber{}, false, nil
}

// List returns all current subscribers.
func (s *SubscriberService) List(ctx context.Context) ([]subscriber.Subscriber, error) {
	return s.loader.Subscribers(ctx)
}

// Subscribe registers a new recipient with default settings.
func (s *SubscriberService) Subscribe(ctx context.Context, id int64) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.loader.Subscribers(ctx)
	if err != nil {
		return subscriber.Subscriber{}, fmt.Errorf("failed to load subscribers: %w", err)
	}
	for _, sub := range subs {
		if sub.ID == id {
			return sub, ErrAlreadySubscribed
		}
	}

	newSub := subscriber.Subscriber{ID: id, Settings: subscriber.DefaultSettings()}
	if err := s.loader.SaveSubscribers(ctx, append(subs, newSub)); err != nil {
		return subscriber.Subscriber{}, fmt.Errorf("failed to persist new subscriber: %w", err)
	}
	s.logger.WithField("recipient", id).Info("Subscriber registered")
	return newSub, nil
}

// Unsubscribe removes a recipient on their own request and purges their
// pending queue items so nothing fires after the goodbye message.
func (s *SubscriberService) Unsubscribe(ctx context.Context, id int64) error {
	if err := s.remove(ctx, id); err != nil {
		return err
	}
	s.queue.RemoveRecipient(id)
	s.logger.WithField("recipient", id).Info("Subscriber unsubscribed")
	return nil
}

// Evict removes a recipient after a permanent delivery rejection. Queue
// purging is the dispatcher's job on this path; eviction only touches the
// store.
func (s *SubscriberService) Evict(ctx context.Context, id int64) error {
	if err := s.remove(ctx, id); err != nil {
		if err == ErrSubscriberNotFound {
			return nil
		}
		return err
	}
	s.logger.WithField("recipient", id).Warn("Subscriber evicted after permanent delivery rejection")
	return nil
}

func (s *SubscriberService) remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.loader.Subscribers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscribers: %w", err)
	}
	kept := make([]subscriber.Subscriber, 0, len(subs))
	found := false
	for _, sub := range subs {
		if sub.ID == id {
			found = true
			continue
		}
		kept = append(kept, sub)
	}
	if !found {
		return ErrSubscriberNotFound
	}
	if err := s.loader.SaveSubscribers(ctx, kept); err != nil {
		return fmt.Errorf("failed to persist subscriber removal: %w", err)
	}
	return nil
}

// SetLeadMinutes validates and persists a new lead time for the recipient.
// The caller must invoke NotificationService.RescheduleFor afterwards, before
// answering the triggering request, so the next tick observes the new queue.
func (s *SubscriberService) SetLeadMinutes(ctx context.Context, id int64, minutes int) error {
	if !subscriber.ValidLeadMinutes(minutes) {
		return ErrInvalidLeadMinutes
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.loader.Subscribers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscribers: %w", err)
	}
	updated := false
	next := make([]subscriber.Subscriber, len(subs))
	for i, sub := range subs {
		if sub.ID == id {
			sub.Settings.LeadMinutes = minutes
			updated = true
		}
		next[i] = sub
	}
	if !updated {
		return ErrSubscriberNotFound
	}
	if err := s.loader.SaveSubscribers(ctx, next); err != nil {
		return fmt.Errorf("failed to persist lead minutes: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"recipient": id, "lead_minutes": minutes}).
		Info("Subscriber lead time updated")
	return nil
}
