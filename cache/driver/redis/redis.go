// Package redis is the cache backend shared between service replicas.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sulavpanthi/xero-oauth/cache/driver"
)

// Cache implements cache using Redis
type Cache struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// Config holds Redis specific configuration
type Config struct {
	Host     string
	Port     string
	Password string
	Database int
	URL      string

	MaxRetries   int
	PoolSize     int
	MinIdleConns int

	UseTLS     bool
	DefaultTTL time.Duration
	Namespace  string
}

// New connects to Redis and verifies the connection with a PING.
func New(cfg Config) (*Cache, error) {
	opts := &redis.UniversalOptions{
		Addrs:    []string{buildAddr(cfg)},
		Password: cfg.Password,
		DB:       cfg.Database,
	}

	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = &redis.UniversalOptions{
			Addrs:     []string{parsed.Addr},
			Username:  parsed.Username,
			Password:  parsed.Password,
			DB:        parsed.DB,
			TLSConfig: parsed.TLSConfig,
		}
	}

	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.UseTLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.Namespace, cfg.DefaultTTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, namespace string, defaultTTL time.Duration) *Cache {
	c := &Cache{client: client, defaultTTL: defaultTTL}
	if namespace != "" {
		c.prefix = namespace + ":"
	}
	return c
}

// Get retrieves a value by key
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, driver.ErrKeyNotFound
		}
		return nil, err
	}
	return val, nil
}

// Set stores a value with optional TTL
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func buildAddr(cfg Config) string {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}
	return host + ":" + port
}
