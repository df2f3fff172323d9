package server

import (
	"fmt"
	"time"

	"github.com/sulavpanthi/xero-oauth/config"
)

// Config defines the HTTP server configuration
type Config struct {
	Port string `env:"SERVER_PORT,default:8000"`

	// Env selects the logger and gin mode: "development" or "production"
	Env string `env:"SERVER_ENV,default:development"`

	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT,default:30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default:10s"`

	// Rate limiting per client IP, requests per second. Zero disables it.
	RateLimit int `env:"SERVER_RATE_LIMIT,default:20"`
	RateBurst int `env:"SERVER_RATE_BURST,default:40"`

	SecurityHeaders bool `env:"SERVER_SECURITY_HEADERS,default:true"`
	EnableHSTS      bool `env:"SERVER_HSTS_ENABLED,default:false"`
	HSTSMaxAge      int  `env:"SERVER_HSTS_MAX_AGE,default:31536000"`

	// TrustedProxies are passed to gin so ClientIP honours X-Forwarded-For
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`
}

// GetConfig returns config loaded from environment with optional LoadOptions
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether Env selects production behaviour.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}
