package database

import (
	"github.com/sulavpanthi/xero-oauth/config"
)

// Config holds database configuration
type Config struct {
	// URL is the full connection string. When Driver is empty the driver is
	// inferred from its scheme (postgres://, mysql://, sqlite://, file:, libsql://).
	URL string `env:"DATABASE_URL"`

	// Driver: postgres, mysql, sqlite, turso, libsql. The command also accepts
	// "memory", which skips the database entirely.
	Driver string `env:"DB_DRIVER"`

	// Connection details, used only when URL is empty
	Host     string `env:"DB_HOST,default:localhost"`
	Port     string `env:"DB_PORT"`
	Database string `env:"DB_DATABASE,default:xero_oauth.db"`
	Username string `env:"DB_USERNAME"`
	Password string `env:"DB_PASSWORD"`

	// Auth token for Turso/LibSQL
	AuthToken string `env:"DB_AUTH_TOKEN"`

	SSLMode string `env:"DB_SSL_MODE,default:disable"` // For PostgreSQL
	Params  string `env:"DB_PARAMS"`

	// Connection Pool Settings
	MaxOpenConns    int `env:"DB_MAX_OPEN_CONNS,default:25"`
	MaxIdleConns    int `env:"DB_MAX_IDLE_CONNS,default:5"`
	ConnMaxLifetime int `env:"DB_CONN_MAX_LIFETIME,default:300"` // seconds
	ConnMaxIdleTime int `env:"DB_CONN_MAX_IDLE_TIME,default:60"` // seconds

	// Debug enables GORM query logging
	Debug bool `env:"DB_DEBUG,default:false"`

	// AutoMigrate creates missing tables on startup
	AutoMigrate bool `env:"DB_AUTO_MIGRATE,default:true"`
}

// GetConfig loads configuration from environment variables
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}
