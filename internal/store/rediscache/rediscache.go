// Package rediscache implements the transient alert-flag cache on Redis.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caresync/platform/internal/shared/config"
	"github.com/caresync/platform/internal/shared/metrics"
	"github.com/caresync/platform/internal/store"
)

// Store implements store.CacheStore. Alert flags live only here; no
// persistence requirement across restarts.
type Store struct {
	client *redis.Client
}

// New creates the Redis client and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Store{client: client}, nil
}

// Set inserts or overwrites a key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	defer observe("set")()
	return s.client.Set(ctx, key, value, 0).Err()
}

// Delete removes a key. Deleting an absent key is a no-op success.
func (s *Store) Delete(ctx context.Context, key string) error {
	defer observe("delete")()
	return s.client.Del(ctx, key).Err()
}

// Get returns the value and whether the key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	defer observe("get")()
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Keys returns the keys matching a glob pattern. Serves the low-volume
// alert listing endpoint.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	defer observe("keys")()
	return s.client.Keys(ctx, pattern).Result()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveAdapterCall(string(store.TargetCache), op, time.Since(start))
	}
}

var _ store.CacheStore = (*Store)(nil)
