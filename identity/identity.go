package identity

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/cache"
	"github.com/sulavpanthi/xero-oauth/config"
	"github.com/sulavpanthi/xero-oauth/krypto"
)

// Config controls the decorators stacked on the base store.
type Config struct {
	// CacheTTL is how long a record stays cached; zero disables caching.
	CacheTTL time.Duration `env:"IDENTITY_CACHE_TTL,default:5m"`

	// TokenEncryptionKey enables sealing of provider tokens at rest when set.
	// Raw or base64 AES key of 16, 24 or 32 bytes.
	TokenEncryptionKey string `env:"IDENTITY_TOKEN_ENCRYPTION_KEY"`
}

// GetConfig loads configuration from environment variables
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Compose wraps base with the decorators cfg enables. Sealing sits outermost
// so that both the cache and the database only ever hold ciphertext.
// c may be nil. opts configure the cache's clock.
func Compose(base Store, c cache.Cache, cfg Config, log *zap.Logger, opts ...Option) (Store, error) {
	store := base

	if c != nil && cfg.CacheTTL > 0 {
		store = NewCachedStore(store, c, cfg.CacheTTL, log, opts...)
	}

	if cfg.TokenEncryptionKey != "" {
		sealer, err := krypto.NewAESGCMService(cfg.TokenEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("identity token encryption: %w", err)
		}
		store = NewSealedStore(store, sealer)
	}

	return store, nil
}
