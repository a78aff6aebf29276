package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/sitebudget/internal/config"
	"github.com/goodtune/sitebudget/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements storage.Backend using Redis. The document and its
// revision live under two keys sharing the configured prefix.
type Store struct {
	client      *redis.Client
	documentKey string
	revisionKey string
	writeScript *redis.Script
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry a port (e.g. miniredis addresses)
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sitebudget"
	}

	return &Store{
		client:      client,
		documentKey: prefix + ":document",
		revisionKey: prefix + ":revision",
		writeScript: redis.NewScript(writeDocumentScript),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Read returns the stored document or storage.ErrNotFound
func (s *Store) Read(ctx context.Context) (*storage.Document, error) {
	values, err := s.client.MGet(ctx, s.documentKey, s.revisionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return parseDocument(values)
}

// Write atomically replaces the document and bumps the revision
func (s *Store) Write(ctx context.Context, data []byte, expected uint64) (uint64, error) {
	keys := []string{s.documentKey, s.revisionKey}
	args := []interface{}{string(data), expected}

	rev, err := s.writeScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("write document: empty script reply")
		}
		return 0, fmt.Errorf("write document: %w", err)
	}
	if rev < 0 {
		return 0, storage.ErrRevisionConflict
	}
	return uint64(rev), nil
}
