package scheduler

import (
	"context"
	"time"

	"prayer_notification_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// EngineScheduler owns the three host-scheduled tasks of the engine: the
// daily queue build, the short dispatch tick and the housekeeping pass.
// All specs are six-field (seconds first) because the dispatch tick runs on
// a sub-minute interval.
type EngineScheduler struct {
	cronEngine       *cron.Cron
	notifService     app.NotificationService
	logger           *logrus.Entry
	specDailyBuild   string
	specDispatch     string
	specHousekeeping string
}

func NewEngineScheduler(
	notifService app.NotificationService,
	loc *time.Location,
	logger *logrus.Entry,
	specDailyBuild string, // e.g. "0 5 0 * * *" (00:05 daily)
	specDispatch string, // e.g. "*/30 * * * * *" (every 30s)
	specHousekeeping string, // e.g. "0 0 * * * *" (hourly)
) *EngineScheduler {
	return &EngineScheduler{
		cronEngine:       cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		notifService:     notifService,
		logger:           logger,
		specDailyBuild:   specDailyBuild,
		specDispatch:     specDispatch,
		specHousekeeping: specHousekeeping,
	}
}

func (s *EngineScheduler) Start() {
	s.logger.Info("Starting engine scheduler")

	_, err := s.cronEngine.AddFunc(s.specDailyBuild, func() {
		s.logger.Info("Cron job triggered: daily queue build")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.notifService.BuildDailyQueue(ctx); err != nil {
			s.logger.WithError(err).Error("Daily queue build failed")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add daily build cron job")
	}

	_, err = s.cronEngine.AddFunc(s.specDispatch, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.notifService.DispatchDue(ctx); err != nil {
			s.logger.WithError(err).Error("Dispatch tick failed")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add dispatch cron job")
	}

	_, err = s.cronEngine.AddFunc(s.specHousekeeping, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.notifService.Housekeep(ctx)
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add housekeeping cron job")
	}

	s.cronEngine.Start()
	s.logger.Info("Engine scheduler started with jobs")
}

func (s *EngineScheduler) Stop() {
	s.logger.Info("Stopping engine scheduler")
	ctx := s.cronEngine.Stop() // no new runs; wait for running jobs
	<-ctx.Done()
	s.logger.Info("Engine scheduler gracefully stopped")
}
