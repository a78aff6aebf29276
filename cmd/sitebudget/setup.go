package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goodtune/sitebudget/internal/config"
	"github.com/goodtune/sitebudget/internal/storage"
	"github.com/goodtune/sitebudget/internal/storage/file"
	"github.com/goodtune/sitebudget/internal/storage/redis"
	"github.com/goodtune/sitebudget/internal/storage/sqlite"
	"github.com/goodtune/sitebudget/internal/usage"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// openBackend opens the storage backend named by cfg.Type.
func openBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Type {
	case "", "file":
		return file.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be file, redis or sqlite)", cfg.Type)
	}
}

// openTracker opens the configured backend and loads a tracker over it. The
// returned store must be closed by the caller.
func openTracker(cfg *config.Config, logger zerolog.Logger) (*usage.Tracker, *usage.Store, error) {
	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	loc, err := cfg.Usage.Location()
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}

	store := usage.NewStore(backend, cfg.Storage.Versioned, logger)
	tracker, err := usage.NewTracker(store, usage.Config{
		Location:           loc,
		NormalizeCacheSize: cfg.Usage.NormalizeCacheSize,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to initialize tracker: %w", err)
	}

	return tracker, store, nil
}

// loadCommandConfig loads configuration for one-shot subcommands and returns
// a quiet logger that only reports errors.
func loadCommandConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
	return cfg, logger, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	text := cfg.Format == "text"
	if cfg.Format == "" || cfg.Format == "auto" {
		text = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	if text {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
