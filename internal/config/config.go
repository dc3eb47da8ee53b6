// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr       string
	DBPath           string
	PublicURL        string
	WebhookSecret    string
	GitHubToken      string
	GitHubOrg        string
	RedisAddr        string
	RedisQueue       string
	NATSURL          string
	NATSSubject      string
	SweepInterval    time.Duration
	FetchConcurrency int
	AdminToken       string
	LogLevel         slog.Level
}

// ReconcileEnabled reports whether a source-host token is configured. Without
// one, missed-commit reconciliation and the scheduled sweep are disabled.
func (c *Config) ReconcileEnabled() bool {
	return c.GitHubToken != ""
}

// CallbackURL is the address build workers post completion results to.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/api/v1/builds/completed"
}

// Load reads configuration from environment variables and returns a validated
// Config. Variables from the file named by CLASSBUILD_ENV_FILE (default .env)
// are loaded first without overriding the environment; a missing file is
// ignored. CLASSBUILD_WEBHOOK_SECRET is required.
func Load() (*Config, error) {
	envFile := lookup("CLASSBUILD_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		ListenAddr:  lookup("CLASSBUILD_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:      lookup("CLASSBUILD_DB_PATH", "classbuild.db"),
		PublicURL:   lookup("CLASSBUILD_PUBLIC_URL", "http://127.0.0.1:8080"),
		GitHubToken: os.Getenv("CLASSBUILD_GITHUB_TOKEN"),
		GitHubOrg:   os.Getenv("CLASSBUILD_GITHUB_ORG"),
		RedisAddr:   lookup("CLASSBUILD_REDIS_ADDR", "127.0.0.1:6379"),
		RedisQueue:  lookup("CLASSBUILD_REDIS_QUEUE", "classbuild:jobs"),
		NATSURL:     os.Getenv("CLASSBUILD_NATS_URL"),
		NATSSubject: lookup("CLASSBUILD_NATS_SUBJECT", "classbuild.builds.completed"),
		AdminToken:  os.Getenv("CLASSBUILD_ADMIN_TOKEN"),
	}

	cfg.WebhookSecret = os.Getenv("CLASSBUILD_WEBHOOK_SECRET")
	if cfg.WebhookSecret == "" {
		return nil, errors.New("CLASSBUILD_WEBHOOK_SECRET is required")
	}

	var err error
	if cfg.SweepInterval, err = durationVar("CLASSBUILD_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("CLASSBUILD_SWEEP_INTERVAL must not be negative, got %s", cfg.SweepInterval)
	}

	if cfg.FetchConcurrency, err = intVar("CLASSBUILD_FETCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("CLASSBUILD_FETCH_CONCURRENCY must be at least 1, got %d", cfg.FetchConcurrency)
	}

	if v, ok := os.LookupEnv("CLASSBUILD_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("CLASSBUILD_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

func lookup(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func durationVar(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return d, nil
}

func intVar(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return n, nil
}
