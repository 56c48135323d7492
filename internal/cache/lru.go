package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// LRUCache keeps recent screenings in process memory. It is the whole
// cache for Community installs and the local phase of TwoPhaseCache.
// Entries expire lazily: a stale item is dropped when next read.
type LRUCache struct {
	mu       sync.RWMutex
	capacity int
	index    map[string]*list.Element
	order    *list.List
	counters map[string]*windowCounter
}

type lruItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type windowCounter struct {
	n         int64
	expiresAt time.Time
}

// NewLRUCache creates an in-memory cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity: capacity,
		index:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*windowCounter),
	}
}

// scope prefixes a key with its tenant so tenants never read each other.
func (c *LRUCache) scope(tenantID, key string) string {
	return tenantID + ":" + key
}

// Get returns the cached value, or nil without error on a miss.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[c.scope(tenantID, key)]
	if !ok {
		return nil, nil
	}

	item := elem.Value.(*lruItem)
	if time.Now().After(item.expiresAt) {
		c.drop(elem)
		return nil, nil
	}

	c.order.MoveToFront(elem)
	return item.value, nil
}

// Set stores the value under the tenant's key for the given TTL.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	scoped := c.scope(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[scoped]; ok {
		item := elem.Value.(*lruItem)
		item.value = value
		item.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(elem)
		return nil
	}

	if c.order.Len() >= c.capacity {
		c.dropOldest()
	}

	c.index[scoped] = c.order.PushFront(&lruItem{
		key:       scoped,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes the tenant's key, if present.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[c.scope(tenantID, key)]; ok {
		c.drop(elem)
	}
	return nil
}

// GetScreening returns the entity's cached screening, or nil on a miss.
func (c *LRUCache) GetScreening(ctx context.Context, tenantID string, entityID string) (*domain.Screening, error) {
	data, err := c.Get(ctx, tenantID, screeningKey(entityID))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeScreening(data)
}

// SetScreening caches the entity's screening for the given TTL.
func (c *LRUCache) SetScreening(ctx context.Context, tenantID string, entityID string, s *domain.Screening, ttl time.Duration) error {
	data, err := encodeScreening(s)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, screeningKey(entityID), data, ttl)
}

// IncrementCounter bumps the tenant's counter inside a rolling window.
// The first bump after the window lapses restarts the count at 1.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	scoped := c.scope(tenantID, "counter:"+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if w, ok := c.counters[scoped]; ok && now.Before(w.expiresAt) {
		w.n++
		return w.n, nil
	}

	c.counters[scoped] = &windowCounter{n: 1, expiresAt: now.Add(window)}
	return 1, nil
}

// Ping reports cache health. An in-memory cache is always healthy.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close discards all cached entries and counters.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]*windowCounter)
	return nil
}

// Stats returns the current entry count and the configured capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.capacity
}

func (c *LRUCache) drop(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.index, elem.Value.(*lruItem).key)
}

func (c *LRUCache) dropOldest() {
	if elem := c.order.Back(); elem != nil {
		c.drop(elem)
	}
}
