package oauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sulavpanthi/xero-oauth/config"
)

// Config defines the provider client configuration
type Config struct {
	ClientID     string `env:"CLIENT_ID,required"`
	ClientSecret string `env:"CLIENT_SECRET,required"`

	// RedirectURL is the callback URL registered with the provider
	RedirectURL string `env:"REDIRECT_URL,required"`

	AuthorizationURL string `env:"AUTHORIZATION_URL,default:https://login.xero.com/identity/connect/authorize"`
	TokenURL         string `env:"TOKEN_URL,default:https://identity.xero.com/connect/token"`
	ConnectionURL    string `env:"CONNECTION_URL,default:https://api.xero.com/connections"`
	InvoiceURL       string `env:"INVOICE_URL,default:https://api.xero.com/api.xro/2.0/Invoices"`

	// Scopes may be comma or space separated
	Scopes []string `env:"SCOPES,default:offline_access,openid,profile,email,accounting.transactions"`

	// State is accepted for compatibility with older deployments. The login
	// flow always uses the record id as state and ignores this value.
	State string `env:"STATE"`

	// HTTPTimeout bounds every provider call
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT,default:30s"`
}

// GetConfig returns config loaded from environment with optional LoadOptions
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("failed to load oauth config: %w", err)
	}
	cfg.Scopes = normalizeScopes(cfg.Scopes)
	return cfg, nil
}

// Validate checks configuration validity
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: client_id required", ErrInvalidConfig)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: client_secret required", ErrInvalidConfig)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%w: redirect_url required", ErrInvalidConfig)
	}

	for name, raw := range map[string]string{
		"authorization_url": c.AuthorizationURL,
		"token_url":         c.TokenURL,
		"connection_url":    c.ConnectionURL,
		"invoice_url":       c.InvoiceURL,
		"redirect_url":      c.RedirectURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL", ErrInvalidConfig, name)
		}
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%w: http_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

func normalizeScopes(scopes []string) []string {
	return strings.Fields(strings.Join(scopes, " "))
}
