package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/redis/go-redis/v9"
)

// incrScript bumps a counter and starts its expiry window on first use.
// INCR and PEXPIRE must run atomically or two nodes could race the
// window start.
var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache is the Pro tier cache and the remote phase of
// TwoPhaseCache. Keys are namespaced harrier:<tenant>:<key>.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) scope(tenantID, key string) string {
	return "harrier:" + tenantID + ":" + key
}

// Get returns the cached value, or nil without error on a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	val, err := c.client.Get(ctx, c.scope(tenantID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores the value under the tenant's key for the given TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Set(ctx, c.scope(tenantID, key), value, ttl).Err()
}

// Delete removes the tenant's key.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Del(ctx, c.scope(tenantID, key)).Err()
}

// GetScreening returns the entity's cached screening, or nil on a miss.
func (c *RedisCache) GetScreening(ctx context.Context, tenantID string, entityID string) (*domain.Screening, error) {
	data, err := c.Get(ctx, tenantID, screeningKey(entityID))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeScreening(data)
}

// SetScreening caches the entity's screening for the given TTL.
func (c *RedisCache) SetScreening(ctx context.Context, tenantID string, entityID string, s *domain.Screening, ttl time.Duration) error {
	data, err := encodeScreening(s)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, screeningKey(entityID), data, ttl)
}

// IncrementCounter bumps the tenant's counter inside a rolling window,
// atomically across every node sharing this Redis.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	scoped := c.scope(tenantID, "counter:"+key)
	return incrScript.Run(ctx, c.client, []string{scoped}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
