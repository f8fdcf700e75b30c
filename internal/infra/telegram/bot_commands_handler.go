package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"prayer_notification_bot/internal/app"
	"prayer_notification_bot/internal/domain/schedule"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// leadChoices are the inline-keyboard options offered by a bare /remind.
var leadChoices = []int{5, 10, 15, 30, 45, 60}

// RegisterBotCommands wires the subscriber-facing commands and the lead-time
// callback keyboard.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	subService *app.SubscriberService,
	notifService app.NotificationService,
	loader *app.CachedLoader,
	loc *time.Location,
	baseLogger *logrus.Entry,
) {
	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"command": "/start", "sender_id": senderID})
		logCtx.Info("Command received")

		sub, err := subService.Subscribe(ctx, senderID)
		if err == app.ErrAlreadySubscribed {
			return c.Send(fmt.Sprintf("Вы уже подписаны на уведомления. Напоминание приходит за %d мин. до намаза. Используйте /help для списка команд.", sub.Settings.LeadMinutes))
		}
		if err != nil {
			logCtx.WithError(err).Error("Failed to subscribe user")
			return c.Send("Произошла ошибка при подписке. Пожалуйста, попробуйте позже.")
		}

		// Pull the newcomer into today's queue right away instead of
		// waiting for the post-midnight build.
		if err := notifService.BuildDailyQueue(ctx); err != nil && err != app.ErrNoSchedule {
			logCtx.WithError(err).Error("Queue rebuild after subscribe failed")
		}

		return c.Send(fmt.Sprintf("Ассаляму алейкум, %s! Вы подписаны на уведомления о времени намаза. Напоминание будет приходить за %d мин. Команда /remind меняет это время, /help — список команд.", c.Sender().FirstName, sub.Settings.LeadMinutes))
	})

	b.Handle("/stop", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"command": "/stop", "sender_id": senderID})
		logCtx.Info("Command received")

		err := subService.Unsubscribe(ctx, senderID)
		if err == app.ErrSubscriberNotFound {
			return c.Send("Вы не были подписаны на уведомления.")
		}
		if err != nil {
			logCtx.WithError(err).Error("Failed to unsubscribe user")
			return c.Send("Произошла ошибка при отписке. Пожалуйста, попробуйте позже.")
		}
		return c.Send("Вы отписаны от уведомлений. Чтобы подписаться снова, отправьте /start.")
	})

	b.Handle("/remind", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"command": "/remind", "sender_id": senderID})
		logCtx.Info("Command received")

		args := c.Args()
		if len(args) == 0 {
			markup := &telebot.ReplyMarkup{}
			var rows []telebot.Row
			var row telebot.Row
			for i, m := range leadChoices {
				row = append(row, markup.Data(fmt.Sprintf("%d мин", m), fmt.Sprintf("lead_%d", m)))
				if (i+1)%3 == 0 {
					rows = append(rows, row)
					row = nil
				}
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
			markup.Inline(rows...)
			return c.Send("За сколько минут до намаза присылать напоминание?", markup)
		}

		minutes, err := strconv.Atoi(args[0])
		if err != nil {
			return c.Send("Неверный формат команды. Используйте: /remind <минуты от 1 до 60>")
		}
		return applyLeadMinutes(ctx, c, subService, notifService, senderID, minutes, logCtx)
	})

	b.Handle("/times", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"command": "/times", "sender_id": senderID})
		logCtx.Info("Command received")

		date := time.Now().In(loc).Format(schedule.DateLayout)
		day, ok, err := loader.ScheduleFor(ctx, date)
		if err != nil {
			logCtx.WithError(err).Error("Failed to load schedule")
			return c.Send("Произошла ошибка при загрузке расписания. Пожалуйста, попробуйте позже.")
		}
		if !ok {
			return c.Send("Расписание на сегодня ещё не загружено.")
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Время намазов на %s:\n", date))
		for _, key := range schedule.Order {
			if at, present := day.Occasions[key]; present {
				sb.WriteString(fmt.Sprintf("%s — %s\n", schedule.Title(key), at))
			}
		}
		return c.Send(sb.String())
	})

	b.Handle("/help", func(c telebot.Context) error {
		var sb strings.Builder
		sb.WriteString("Доступные команды:\n\n")
		sb.WriteString("/start — подписаться на уведомления о времени намаза\n")
		sb.WriteString("/stop — отписаться от уведомлений\n")
		sb.WriteString("/remind <минуты> — за сколько минут присылать напоминание (от 1 до 60)\n")
		sb.WriteString("/times — расписание намазов на сегодня\n")
		sb.WriteString("/help — показать это сообщение")
		return c.Send(sb.String())
	})

	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := strings.TrimPrefix(c.Callback().Data, "\f")
		logCtx := baseLogger.WithFields(logrus.Fields{"callback": data, "sender_id": c.Sender().ID})

		if !strings.HasPrefix(data, "lead_") {
			logCtx.Warn("Unhandled callback data")
			return c.Respond(&telebot.CallbackResponse{Text: "Неизвестное действие."})
		}
		minutes, err := strconv.Atoi(strings.TrimPrefix(data, "lead_"))
		if err != nil {
			logCtx.WithError(err).Warn("Invalid lead minutes in callback")
			return c.Respond(&telebot.CallbackResponse{Text: "Ошибка обработки ответа."})
		}

		if err := applyLeadMinutes(ctx, c, subService, notifService, c.Sender().ID, minutes, logCtx); err != nil {
			return err
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Настройка сохранена."})
	})
}

// applyLeadMinutes persists the new lead time and reschedules the sender's
// future reminders before replying, so the change is visible to the very
// next dispatch tick.
func applyLeadMinutes(
	ctx context.Context,
	c telebot.Context,
	subService *app.SubscriberService,
	notifService app.NotificationService,
	senderID int64,
	minutes int,
	logCtx *logrus.Entry,
) error {
	err := subService.SetLeadMinutes(ctx, senderID, minutes)
	switch err {
	case nil:
	case app.ErrInvalidLeadMinutes:
		return c.Send("Время напоминания должно быть от 1 до 60 минут.")
	case app.ErrSubscriberNotFound:
		return c.Send("Вы не подписаны на уведомления. Отправьте /start, чтобы подписаться.")
	default:
		logCtx.WithError(err).Error("Failed to set lead minutes")
		return c.Send("Произошла ошибка при сохранении настройки. Пожалуйста, попробуйте позже.")
	}

	if err := notifService.RescheduleFor(ctx, senderID); err != nil && err != app.ErrNoSchedule {
		logCtx.WithError(err).Error("Failed to reschedule reminders after settings change")
	}

	return c.Send(fmt.Sprintf("Готово! Напоминание будет приходить за %d мин. до намаза.", minutes))
}
