// Command xero-oauth runs the Xero OAuth2 broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/broker"
	"github.com/sulavpanthi/xero-oauth/cache"
	"github.com/sulavpanthi/xero-oauth/database"
	"github.com/sulavpanthi/xero-oauth/identity"
	"github.com/sulavpanthi/xero-oauth/krypto"
	"github.com/sulavpanthi/xero-oauth/oauth"
	"github.com/sulavpanthi/xero-oauth/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "xero-oauth:", err)
		os.Exit(1)
	}
}

// settings is every configuration section, loaded once at startup.
type settings struct {
	server   *server.Config
	database *database.Config
	cache    *cache.Config
	identity *identity.Config
	session  *krypto.SessionConfig
	provider *oauth.Config
}

func loadSettings() (*settings, error) {
	var (
		s   settings
		err error
	)
	if s.server, err = server.GetConfig(); err != nil {
		return nil, err
	}
	if s.database, err = database.GetConfig(); err != nil {
		return nil, err
	}
	if s.cache, err = cache.GetConfig(); err != nil {
		return nil, err
	}
	if s.identity, err = identity.GetConfig(); err != nil {
		return nil, err
	}
	if s.session, err = krypto.GetSessionConfig(); err != nil {
		return nil, err
	}
	if s.provider, err = oauth.GetConfig(); err != nil {
		return nil, err
	}
	return &s, nil
}

func run() error {
	cfg, err := loadSettings()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := server.NewLogger(cfg.server.Env)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.provider.State != "" {
		log.Warn("XERO_STATE is set but ignored; each login uses its record id as state")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := server.NewHealthChecker()

	base, closeStore, err := openStore(ctx, cfg.database, health, log)
	if err != nil {
		return err
	}
	defer closeStore()

	kv, err := cache.New(*cfg.cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer kv.Close()
	health.RegisterCheck("cache", kv.Ping)

	store, err := identity.Compose(base, kv, *cfg.identity, log.Named("identity"))
	if err != nil {
		return err
	}

	codec, err := krypto.NewSessionCodec(*cfg.session)
	if err != nil {
		return err
	}

	metrics := oauth.NewDefaultMetricsCollector()
	xero, err := oauth.NewXeroProvider(*cfg.provider, nil)
	if err != nil {
		return err
	}
	provider := oauth.NewInstrumentedProvider(xero, metrics)
	manager := oauth.NewTokenManager(store, provider, oauth.WithLogger(log.Named("oauth")))
	resources := oauth.NewResourceClient(*cfg.provider, nil, metrics)

	srv, err := server.New(*cfg.server, server.Dependencies{
		Flow:    broker.NewFlow(store, provider, manager, resources, codec, log.Named("broker")),
		Gate:    broker.NewGate(codec),
		Health:  health,
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("xero-oauth stopped cleanly")
	return nil
}

// openStore opens the base credential store. DB_DRIVER=memory keeps records
// in process and needs no database.
func openStore(ctx context.Context, cfg *database.Config, health *server.HealthChecker, log *zap.Logger) (identity.Store, func(), error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory credential store; records are lost on restart")
		return identity.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Open(*cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	store := identity.NewGormStore(db)
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	health.RegisterCheck("database", db.PingContext)
	log.Info("database connected", zap.String("driver", db.Driver()))
	return store, func() { _ = db.Close() }, nil
}
