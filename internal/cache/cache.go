// Package cache keeps decoded share payloads in memory until they expire,
// so repeated views of the same link skip the inflate and parse work.
// Only aggregate payloads are stored; uploads never reach it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/encoding"
)

// Metrics receives hit and miss notifications
type Metrics interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

type item struct {
	payload   *encoding.SharePayload
	expiresAt time.Time
}

func (i *item) expired(now time.Time) bool {
	return now.After(i.expiresAt)
}

// Cache is a thread-safe payload cache with per-item expiry
type Cache struct {
	mu          sync.RWMutex
	items       map[string]*item
	maxItems    int
	fallbackTTL time.Duration
	metrics     Metrics
	now         func() time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithMetrics reports hits and misses to m
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache holding at most maxItems payloads. Payloads without
// an expiry are kept for fallbackTTL.
func New(maxItems int, fallbackTTL time.Duration, opts ...Option) *Cache {
	if maxItems <= 0 {
		maxItems = 1024
	}
	c := &Cache{
		items:       make(map[string]*item),
		maxItems:    maxItems,
		fallbackTTL: fallbackTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the cache key of a token. URL, marker and bare forms of the
// same token share a key.
func Key(token string) string {
	token = strings.TrimSpace(token)
	if i := strings.LastIndex(token, encoding.FragmentMarker); i >= 0 {
		token = token[i+len(encoding.FragmentMarker):]
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the payload cached for token
func (c *Cache) Get(token string) (*encoding.SharePayload, bool) {
	key := Key(token)

	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if ok && it.expired(c.now()) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		ok = false
	}

	if c.metrics != nil {
		if ok {
			c.metrics.IncrementCacheHit()
		} else {
			c.metrics.IncrementCacheMiss()
		}
	}

	if !ok {
		return nil, false
	}
	return it.payload.Clone(), true
}

// Set stores the payload decoded from token until the payload expires
func (c *Cache) Set(token string, p *encoding.SharePayload) {
	now := c.now()
	expiresAt := p.Expires()
	if expiresAt.IsZero() {
		expiresAt = now.Add(c.fallbackTTL)
	}
	if !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(token)
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictLocked(now)
	}
	c.items[key] = &item{payload: p.Clone(), expiresAt: expiresAt}
}

// evictLocked drops expired items, or the one closest to expiry when
// none has expired.
func (c *Cache) evictLocked(now time.Time) {
	var soonestKey string
	var soonest time.Time
	removed := false

	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
			removed = true
			continue
		}
		if soonestKey == "" || it.expiresAt.Before(soonest) {
			soonestKey, soonest = key, it.expiresAt
		}
	}

	if !removed && soonestKey != "" {
		delete(c.items, soonestKey)
	}
}

// Cleanup removes expired items and returns how many were removed
func (c *Cache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	expiredItems := 0
	for _, it := range c.items {
		if it.expired(now) {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   len(c.items),
		"expired_items": expiredItems,
		"active_items":  len(c.items) - expiredItems,
		"max_items":     c.maxItems,
	}
}
