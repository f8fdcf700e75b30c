package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	TelegramToken   string
	AdminTelegramID int64 // 0 disables admin commands
	Timezone        string
	DataDir         string
	DatabaseURL     string // empty selects the file-backed store
	HTTPListenAddr  string
	ScheduleAPIKey  string // empty disables ingestion auth
	LogLevel        string
	Environment     string

	CacheTTL       time.Duration
	SendTimeout    time.Duration
	SendRatePerSec float64

	// Six-field cron specs (seconds first); the dispatch tick needs
	// sub-minute resolution.
	CronSpecDailyBuild   string
	CronSpecDispatch     string
	CronSpecHousekeeping string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables; a missing
	// .env file is fine.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		adminID, err := strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
		cfg.AdminTelegramID = adminID
	}

	cfg.Timezone = os.Getenv("TIMEZONE")
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Moscow"
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.HTTPListenAddr = os.Getenv("HTTP_LISTEN_ADDR")
	if cfg.HTTPListenAddr == "" {
		cfg.HTTPListenAddr = ":8080"
	}

	cfg.ScheduleAPIKey = os.Getenv("SCHEDULE_API_TOKEN")

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	var err error
	cfg.CacheTTL, err = durationEnv("CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.SendTimeout, err = durationEnv("SEND_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.SendRatePerSec = 25
	if rateStr := os.Getenv("SEND_RATE_PER_SEC"); rateStr != "" {
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("invalid SEND_RATE_PER_SEC: %q", rateStr)
		}
		cfg.SendRatePerSec = rate
	}

	cfg.CronSpecDailyBuild = os.Getenv("CRON_SPEC_DAILY_BUILD")
	if cfg.CronSpecDailyBuild == "" {
		cfg.CronSpecDailyBuild = "0 5 0 * * *" // 00:05 local, daily
	}
	cfg.CronSpecDispatch = os.Getenv("CRON_SPEC_DISPATCH")
	if cfg.CronSpecDispatch == "" {
		cfg.CronSpecDispatch = "*/30 * * * * *" // every 30 seconds
	}
	cfg.CronSpecHousekeeping = os.Getenv("CRON_SPEC_HOUSEKEEPING")
	if cfg.CronSpecHousekeeping == "" {
		cfg.CronSpecHousekeeping = "0 0 * * * *" // hourly
	}

	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return d, nil
}
