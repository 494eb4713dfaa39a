package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	AuthSecret string

	ClockPollMs   int
	MoveLogTTLSec int

	MaxConcurrentMatches int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:           ":3000",
		ClockPollMs:          1000,
		MoveLogTTLSec:        86400,
		MaxConcurrentMatches: 500,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.AuthSecret = strings.TrimSpace(os.Getenv("AUTH_SECRET"))

	if v := strings.TrimSpace(os.Getenv("CLOCK_POLL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClockPollMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MOVE_LOG_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MoveLogTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_MATCHES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentMatches = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.AuthSecret == "" {
		return nil, errors.New("AUTH_SECRET is required")
	}

	return cfg, nil
}
