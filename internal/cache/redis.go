// Package cache implements the read cache collaborator on Redis. Entries are
// hydrated query results keyed by entity and query shape; every mutation that
// affects an entity invalidates its keys, and a TTL bounds staleness for any
// invalidation that is missed. The cache is never a source of truth: capacity
// decisions always read the live store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridepool/internal/config"
	"ridepool/internal/ports"
)

// Key composes the canonical cache key: {entityType}:{entityId}:{queryName}.
func Key(entityType, entityID, queryName string) string {
	return fmt.Sprintf("%s:%s:%s", entityType, entityID, queryName)
}

// Query names used by the marketplace service.
const (
	QueryDriverRides       = "driver-rides"
	QueryPassengerBookings = "passenger-bookings"
)

// Redis is the go-redis backed implementation of ports.Cache.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.Cache = (*Redis)(nil)

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg *config.Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client, ttl: cfg.Redis.CacheTTL}, nil
}

// DefaultTTL returns the configured entry lifetime.
func (r *Redis) DefaultTTL() time.Duration {
	return r.ttl
}

// Get unmarshals the cached value into dest and reports whether the key was
// present.
func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON under key. A non-positive ttl falls back to the
// configured default.
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal for cache %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate removes keys. Deleting an absent key is a no-op, which keeps
// invalidation idempotent and safe to repeat.
func (r *Redis) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
