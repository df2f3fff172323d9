// Package memory is the in-process cache backend.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sulavpanthi/xero-oauth/cache/driver"
)

// ErrMaxKeys is returned by Set when the key limit is reached.
var ErrMaxKeys = errors.New("max keys limit reached")

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Config holds memory cache specific configuration
type Config struct {
	MaxKeys         int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	Namespace       string
}

// Cache is a map guarded by a RWMutex with a janitor goroutine evicting
// expired entries.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxKeys    int
	defaultTTL time.Duration
	prefix     string
	now        func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a new memory cache instance
func New(cfg Config) *Cache {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	c := &Cache{
		entries:    make(map[string]entry),
		maxKeys:    cfg.MaxKeys,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cfg.Namespace != "" {
		c.prefix = cfg.Namespace + ":"
	}

	go c.janitor(interval)
	return c
}

// Get retrieves a value by key
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[c.prefix+key]
	if !ok || e.expired(c.now()) {
		return nil, driver.ErrKeyNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value with optional TTL
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	full := c.prefix + key
	if _, exists := c.entries[full]; !exists && c.maxKeys > 0 && len(c.entries) >= c.maxKeys {
		return ErrMaxKeys
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	e := entry{value: stored}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[full] = e
	return nil
}

// Delete removes a key
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, c.prefix+key)
	c.mu.Unlock()
	return nil
}

// Close stops the janitor. It is safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

// Ping always succeeds.
func (c *Cache) Ping(context.Context) error {
	return nil
}

// Len reports the number of stored entries, expired ones included until the
// janitor runs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}
