package telegram

import (
	"context"
	"fmt"
	"strings"

	"prayer_notification_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAdminHandlers wires the operator commands. When adminTelegramID is
// zero the commands stay unregistered entirely.
func RegisterAdminHandlers(
	ctx context.Context,
	b *telebot.Bot,
	subService *app.SubscriberService,
	notifService app.NotificationService,
	adminTelegramID int64,
	baseLogger *logrus.Entry,
) {
	if adminTelegramID == 0 {
		baseLogger.Info("ADMIN_TELEGRAM_ID not configured, admin commands disabled")
		return
	}

	b.Handle("/subscribers", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/subscribers",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("Ошибка: У вас нет прав для выполнения этой команды.")
		}

		subs, err := subService.List(ctx)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to list subscribers")
			return c.Send(fmt.Sprintf("Произошла ошибка при получении списка подписчиков: %s", err.Error()))
		}
		if len(subs) == 0 {
			return c.Send("Подписчиков пока нет.")
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Подписчиков: %d\n\n", len(subs)))
		for _, sub := range subs {
			sb.WriteString(fmt.Sprintf("%d — напоминание за %d мин.\n", sub.ID, sub.Settings.LeadMinutes))
		}
		return c.Send(sb.String())
	})

	b.Handle("/rebuild", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/rebuild",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("Ошибка: У вас нет прав для выполнения этой команды.")
		}

		err := notifService.BuildDailyQueue(ctx)
		if err == app.ErrNoSchedule {
			return c.Send("Расписание на сегодня не загружено: очередь очищена, уведомлений не будет.")
		}
		if err != nil {
			handlerLogger.WithError(err).Error("Manual queue rebuild failed")
			return c.Send(fmt.Sprintf("Произошла ошибка при перестроении очереди: %s", err.Error()))
		}
		return c.Send("Очередь уведомлений перестроена.")
	})
}
