package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SchedulerMode selects the scheduler adapter.
type SchedulerMode string

const (
	SchedulerModeLive    SchedulerMode = "live"
	SchedulerModeOffline SchedulerMode = "offline"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required (plus
// SCHEDULER_BASE_URL when the scheduler mode is live).
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Admin API
	AdminToken string
	AdminID    string

	// Internal endpoints (fan-out trigger, provider feedback webhook)
	InternalToken string

	// External scheduler
	SchedulerMode        SchedulerMode
	SchedulerBaseURL     string
	SchedulerTimeout     time.Duration
	SchedulerMaxRetries  int
	SchedulerMaxEventAge time.Duration
	// FanoutTarget is handed to every schedule entry as the invocation
	// target; the scheduler POSTs the trigger payload there at fire time.
	FanoutTarget string

	// Email provider
	MailerBaseURL string
	MailerTimeout time.Duration
	SendRate      int // provider sends per second across the pool

	// Fan-out
	FanoutWorkers    int
	MaxSendAttempts  int
	RetryBackoff     time.Duration
	FanoutInterval   time.Duration // runner completion/retry poll
	DueSweepInterval time.Duration
}

func Load() (*Config, error) {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		AdminID:       getEnv("ADMIN_ID", "admin"),
		InternalToken: os.Getenv("INTERNAL_TOKEN"),

		SchedulerMode:        SchedulerMode(getEnv("SCHEDULER_MODE", string(SchedulerModeOffline))),
		SchedulerBaseURL:     os.Getenv("SCHEDULER_BASE_URL"),
		SchedulerTimeout:     getDuration("SCHEDULER_TIMEOUT", 10*time.Second),
		SchedulerMaxRetries:  getInt("SCHEDULER_MAX_RETRIES", 3),
		SchedulerMaxEventAge: getDuration("SCHEDULER_MAX_EVENT_AGE", time.Hour),
		FanoutTarget:         getEnv("FANOUT_TARGET", "http://localhost:8080/internal/fanout"),

		MailerBaseURL: getEnv("MAILER_BASE_URL", "http://localhost:4566"),
		MailerTimeout: getDuration("MAILER_TIMEOUT", 10*time.Second),
		SendRate:      getInt("SEND_RATE_PER_SECOND", 50),

		FanoutWorkers:    getInt("FANOUT_WORKERS", 10),
		MaxSendAttempts:  getInt("MAX_SEND_ATTEMPTS", 3),
		RetryBackoff:     getDuration("RETRY_BACKOFF", 30*time.Second),
		FanoutInterval:   getDuration("FANOUT_POLL_INTERVAL", 2*time.Second),
		DueSweepInterval: getDuration("DUE_SWEEP_INTERVAL", 15*time.Second),
	}

	if cfg.SchedulerMode != SchedulerModeLive && cfg.SchedulerMode != SchedulerModeOffline {
		return nil, fmt.Errorf("SCHEDULER_MODE must be live or offline, got %q", cfg.SchedulerMode)
	}
	if cfg.SchedulerMode == SchedulerModeLive && cfg.SchedulerBaseURL == "" {
		return nil, fmt.Errorf("SCHEDULER_BASE_URL is required when SCHEDULER_MODE=live")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
