package domain

import (
	"context"
	"time"
)

// Cache stores screening results and short-lived counters keyed by
// tenant. The LRU covers Community installs; Redis covers Pro,
// optionally fronted by the LRU as a local read phase.
type Cache interface {
	// Get returns the tenant's value, or nil without error on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores the tenant's value for the given TTL.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes the tenant's key.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetScreening returns the entity's cached screening, or nil on a miss.
	GetScreening(ctx context.Context, tenantID string, entityID string) (*Screening, error)

	// SetScreening caches a screening so repeat requests inside the TTL
	// skip the engines.
	SetScreening(ctx context.Context, tenantID string, entityID string, s *Screening, ttl time.Duration) error

	// IncrementCounter bumps a counter that expires at the end of its
	// window and returns the new count. The increment and the window
	// start are atomic.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Ping reports whether the cache backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection or clears local state.
	Close() error
}

// CacheConfig selects and tunes the cache implementation.
type CacheConfig struct {
	// Type picks the implementation, "memory" or "redis".
	Type string

	// LRU settings, used for "memory" and as the local phase of
	// two-phase caching.
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis connection settings, used when Type is "redis".
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase fronts Redis with the LRU: reads check the local
	// copy first, writes go to both.
	EnableTwoPhase bool
}
