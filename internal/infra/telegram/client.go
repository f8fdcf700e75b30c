package telegram

import (
	"context"
	"errors"
	"fmt"

	"prayer_notification_bot/internal/domain/delivery"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the delivery sink using gopkg.in/telebot.v3.
// Sends are throttled with a token-bucket limiter so a large dispatch minute
// stays inside Telegram's flood limits.
type TelebotAdapter struct {
	bot     *telebot.Bot
	limiter *rate.Limiter
}

func NewTelebotAdapter(b *telebot.Bot, perSecond float64) *TelebotAdapter {
	if perSecond <= 0 {
		perSecond = 25
	}
	return &TelebotAdapter{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Send delivers one text message. Telegram responses that mean "this
// recipient is gone for good" are mapped to delivery.ErrPermanentRejection;
// everything else is a transient failure. The context bounds the limiter
// wait; the bot client carries its own HTTP timeout for the call itself.
func (a *TelebotAdapter) Send(ctx context.Context, recipientID int64, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	_, err := a.bot.Send(&telebot.User{ID: recipientID}, text)
	return mapSendError(err)
}

// mapSendError classifies a telebot send error: permanent rejections are
// wrapped so the dispatcher's errors.Is check triggers eviction, everything
// else passes through as transient.
func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	if isPermanentRejection(err) {
		return fmt.Errorf("%w: %v", delivery.ErrPermanentRejection, err)
	}
	return err
}

func isPermanentRejection(err error) bool {
	permanent := []error{
		telebot.ErrBlockedByUser,
		telebot.ErrUserIsDeactivated,
		telebot.ErrChatNotFound,
		telebot.ErrNotStartedByUser,
	}
	for _, perm := range permanent {
		if errors.Is(err, perm) {
			return true
		}
	}
	return false
}
