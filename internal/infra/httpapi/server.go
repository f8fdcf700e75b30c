package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"prayer_notification_bot/internal/app"
	"prayer_notification_bot/internal/domain/schedule"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Server exposes the schedule ingestion endpoint and a health check. The
// ingestion contract is a full replacement array: the engine never merges
// partial schedule updates.
type Server struct {
	httpServer   *http.Server
	loader       *app.CachedLoader
	notifService app.NotificationService
	loc          *time.Location
	apiToken     string
	logger       *logrus.Entry
}

func NewServer(
	listenAddr string,
	loader *app.CachedLoader,
	notifService app.NotificationService,
	loc *time.Location,
	apiToken string,
	logger *logrus.Entry,
) *Server {
	s := &Server{
		loader:       loader,
		notifService: notifService,
		loc:          loc,
		apiToken:     apiToken,
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Default().Handler)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.auth).Put("/schedule", s.handleReplaceSchedule)
		r.Get("/schedule/today", s.handleTodaySchedule)
	})

	s.httpServer = &http.Server{
		Addr:         listenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP API listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// auth enforces the bearer token when one is configured.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken != "" && r.Header.Get("Authorization") != "Bearer "+s.apiToken {
			s.logger.WithField("remote", r.RemoteAddr).Warn("Rejected unauthorized schedule update")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReplaceSchedule ingests the full replacement schedule array,
// validates it and persists it through the loader's write path so the cache
// observes the new value immediately. A rebuild follows so today's queue
// reflects a schedule that may just have become available.
func (s *Server) handleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	var days []schedule.Day
	if err := json.NewDecoder(r.Body).Decode(&days); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not a schedule array: "+err.Error())
		return
	}
	for _, day := range days {
		if err := day.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	if err := s.loader.SaveSchedules(r.Context(), days); err != nil {
		s.logger.WithError(err).Error("Failed to persist ingested schedule")
		writeError(w, http.StatusInternalServerError, "failed to persist schedule")
		return
	}
	s.logger.WithField("days", len(days)).Info("Schedule replaced via ingestion API")

	if err := s.notifService.BuildDailyQueue(r.Context()); err != nil && err != app.ErrNoSchedule {
		s.logger.WithError(err).Error("Queue rebuild after schedule ingestion failed")
	}

	writeJSON(w, http.StatusOK, map[string]int{"days": len(days)})
}

func (s *Server) handleTodaySchedule(w http.ResponseWriter, r *http.Request) {
	date := time.Now().In(s.loc).Format(schedule.DateLayout)
	day, ok, err := s.loader.ScheduleFor(r.Context(), date)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load today's schedule")
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no schedule published for "+date)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
