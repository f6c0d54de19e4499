// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, the process
// exits with an error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the pipeline service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// FunnelCacheTTL bounds the staleness of a cached funnel report.
	FunnelCacheTTL time.Duration
	// FunnelRefreshMinutes is the cache-warmer cron interval.
	FunnelRefreshMinutes int
	// TransitionLockWait bounds how long a transition waits on the
	// per-candidate lock before failing with a retryable conflict.
	TransitionLockWait time.Duration
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("PIPELINE_PORT")
	if port == "" {
		port = "8083"
	}

	cacheTTLSeconds, err := intEnv("FUNNEL_CACHE_TTL_SECONDS", 30)
	if err != nil {
		return nil, err
	}

	refreshMinutes, err := intEnv("FUNNEL_REFRESH_MINUTES", 5)
	if err != nil {
		return nil, err
	}

	lockWaitMillis, err := intEnv("TRANSITION_LOCK_WAIT_MS", 2000)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                 port,
		DatabaseURL:          dbURL,
		RedisURL:             redisURL,
		FunnelCacheTTL:       time.Duration(cacheTTLSeconds) * time.Second,
		FunnelRefreshMinutes: refreshMinutes,
		TransitionLockWait:   time.Duration(lockWaitMillis) * time.Millisecond,
	}, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return v, nil
}
