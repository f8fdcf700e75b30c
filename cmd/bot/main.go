package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prayer_notification_bot/internal/app"
	"prayer_notification_bot/internal/infra/config"
	"prayer_notification_bot/internal/infra/httpapi"
	"prayer_notification_bot/internal/infra/logger"
	"prayer_notification_bot/internal/infra/scheduler"
	"prayer_notification_bot/internal/infra/storage"
	itg "prayer_notification_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.Environment)
	log := logger.Get()
	log.WithField("environment", cfg.Environment).Info("Prayer notification bot starting")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.WithError(err).Fatalf("FATAL: Invalid TIMEZONE %q", cfg.Timezone)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage backend: Postgres when DATABASE_URL is set, JSON files under
	// DATA_DIR otherwise.
	var store storage.KV
	var fileStore *storage.FileKV
	if cfg.DatabaseURL != "" {
		db, err := storage.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("FATAL: Could not connect to database")
		}
		defer db.Close()
		store, err = storage.NewPostgresKV(ctx, db)
		if err != nil {
			log.WithError(err).Fatal("FATAL: Could not initialize document store")
		}
		log.Info("Using Postgres document store")
	} else {
		fileStore, err = storage.NewFileKV(cfg.DataDir)
		if err != nil {
			log.WithError(err).Fatal("FATAL: Could not initialize data directory")
		}
		store = fileStore
		log.WithField("dir", cfg.DataDir).Info("Using file document store")
	}

	loader := app.NewCachedLoader(store, cfg.CacheTTL, time.Now, log.WithField("component", "loader"))
	queue := app.NewWorkQueue()
	ledger := app.NewLedger()
	subService := app.NewSubscriberService(loader, queue, log.WithField("component", "subscribers"))

	// Telegram bot and the delivery sink built on it.
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := log.WithField("component", "telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.WithError(err).Fatal("FATAL: Could not create Telegram bot")
	}
	sink := itg.NewTelebotAdapter(bot, cfg.SendRatePerSec)

	notifService := app.NewNotificationService(
		loader, subService, queue, ledger, sink, loc, time.Now,
		log.WithField("component", "engine"),
		cfg.SendTimeout, 8,
	)

	// File watcher: external replacement of a document invalidates its
	// cache entry ahead of the TTL. Only applies to the file backend.
	if fileStore != nil {
		watcher, err := storage.NewWatcher(fileStore, log.WithField("component", "watcher"))
		if err != nil {
			log.WithError(err).Warn("Could not start data directory watcher")
		} else {
			go watcher.Run(ctx, loader.Invalidate)
		}
	}

	// Startup build: the queue is rebuilt deterministically from source
	// data, nothing survives a restart. A missing schedule is a fault, not
	// a startup failure.
	if err := notifService.BuildDailyQueue(ctx); err != nil && err != app.ErrNoSchedule {
		log.WithError(err).Error("Initial queue build failed")
	}

	engineScheduler := scheduler.NewEngineScheduler(
		notifService, loc, log.WithField("component", "scheduler"),
		cfg.CronSpecDailyBuild, cfg.CronSpecDispatch, cfg.CronSpecHousekeeping,
	)
	engineScheduler.Start()

	itg.RegisterBotCommands(ctx, bot, subService, notifService, loader, loc, log.WithField("component", "handlers"))
	itg.RegisterAdminHandlers(ctx, bot, subService, notifService, cfg.AdminTelegramID, log.WithField("component", "admin"))
	go bot.Start()
	log.Info("Telegram bot started")

	apiServer := httpapi.NewServer(
		cfg.HTTPListenAddr, loader, notifService, loc, cfg.ScheduleAPIKey,
		log.WithField("component", "httpapi"),
	)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.WithError(err).Error("HTTP API server stopped unexpectedly")
		}
	}()

	log.Info("Application setup complete")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application")
	cancel()
	engineScheduler.Stop()
	bot.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP API shutdown error")
	}
	log.Info("Application shut down gracefully")
}
