// Package cache holds recent screening results and short-lived counters
// so repeat screenings inside the result TTL skip the engines entirely.
// Community installs use the in-process LRU; Pro installs use Redis,
// optionally fronted by the LRU as a local read phase.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// New builds the cache named by cfg.Type.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type %q (want memory or redis)", cfg.Type)
	}
}

func screeningKey(entityID string) string {
	return "screening:" + entityID
}

func encodeScreening(s *domain.Screening) ([]byte, error) {
	return json.Marshal(s)
}

func decodeScreening(data []byte) (*domain.Screening, error) {
	var s domain.Screening
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// TwoPhaseCache reads through a local LRU into Redis. Local hits skip
// the network; Redis hits backfill the local phase for the next read.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   *RedisCache
	localTTL time.Duration
}

// NewTwoPhaseCache builds the LRU-over-Redis pair.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	localTTL := cfg.LocalTTL
	if localTTL == 0 {
		localTTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:    NewLRUCache(cfg.LocalMaxSize),
		remote:   remote,
		localTTL: localTTL,
	}, nil
}

// Get checks the local phase first, then Redis, backfilling local on a
// remote hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.localTTL)
	}
	return val, nil
}

// Set writes both phases. The local copy never outlives the remote one.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	localTTL := c.localTTL
	if ttl < localTTL {
		localTTL = ttl
	}
	if err := c.local.Set(ctx, tenantID, key, value, localTTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes the key from both phases.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// GetScreening returns the entity's cached screening, or nil on a miss.
func (c *TwoPhaseCache) GetScreening(ctx context.Context, tenantID string, entityID string) (*domain.Screening, error) {
	data, err := c.Get(ctx, tenantID, screeningKey(entityID))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeScreening(data)
}

// SetScreening caches the entity's screening in both phases.
func (c *TwoPhaseCache) SetScreening(ctx context.Context, tenantID string, entityID string, s *domain.Screening, ttl time.Duration) error {
	data, err := encodeScreening(s)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, screeningKey(entityID), data, ttl)
}

// IncrementCounter counts in Redis only; a local counter would diverge
// across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks both phases.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("local cache ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes both phases.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports the local phase's entry count and capacity.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
