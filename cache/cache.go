// Package cache provides the key/value backends used to keep identity records
// close to the HTTP handlers: an in-process map or a shared Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sulavpanthi/xero-oauth/cache/driver"
	"github.com/sulavpanthi/xero-oauth/cache/driver/memory"
	"github.com/sulavpanthi/xero-oauth/cache/driver/redis"
)

// Common errors
var (
	ErrInvalidDriver = errors.New("invalid cache driver")
	ErrKeyNotFound   = driver.ErrKeyNotFound
)

// Cache defines the interface for cache implementations
type Cache interface {
	// Get retrieves a value by key. Missing or expired keys yield ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value; a zero TTL falls back to the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
	Ping(ctx context.Context) error
}

// New creates a new cache instance with given config
func New(cfg Config) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(memory.Config{
			MaxKeys:         cfg.MaxKeys,
			DefaultTTL:      cfg.DefaultTTL,
			CleanupInterval: cfg.CleanupInterval,
			Namespace:       cfg.Namespace,
		}), nil
	case "redis":
		rc, err := redis.New(redis.Config{
			Host:         cfg.Host,
			Port:         cfg.Port,
			Password:     cfg.Password,
			Database:     cfg.Database,
			URL:          cfg.URL,
			MaxRetries:   cfg.MaxRetries,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			UseTLS:       cfg.UseTLS,
			DefaultTTL:   cfg.DefaultTTL,
			Namespace:    cfg.Namespace,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDriver, cfg.Driver)
	}
}
