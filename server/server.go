// Package server exposes the broker over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/broker"
	"github.com/sulavpanthi/xero-oauth/oauth"
)

// Dependencies are the components the routes are served by.
type Dependencies struct {
	Flow    *broker.Flow
	Gate    *broker.Gate
	Health  *HealthChecker
	Metrics oauth.MetricsCollector
	Logger  *zap.Logger
}

// Server is the HTTP server of the service
type Server struct {
	config Config
	engine *gin.Engine
	http   *http.Server
	log    *zap.Logger
}

// New builds the router. Health defaults to a checker with no checks.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Flow == nil || deps.Gate == nil {
		return nil, errors.New("server: flow and gate are required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	health := deps.Health
	if health == nil {
		health = NewHealthChecker()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}

	mw := NewMiddleware(cfg, log)
	engine.Use(
		mw.RequestLogging(),
		gin.Recovery(),
		mw.SecurityHeaders(),
		mw.RateLimit(),
		mw.Timeout(),
	)

	h := &handlers{flow: deps.Flow, metrics: deps.Metrics, log: log}

	engine.GET("/health", health.handleHealth)
	if deps.Metrics != nil {
		engine.GET("/metrics", h.metricsSnapshot)
	}

	engine.GET("/login", h.login)
	engine.GET("/callback", h.callback)
	engine.POST("/refresh", h.refresh)

	authed := engine.Group("/")
	authed.Use(RequireAuth(deps.Gate))
	authed.GET("/check-tenants", h.checkTenants)
	authed.POST("/invoices", h.invoices)
	authed.GET("/me", h.me)

	port := cfg.Port
	if port == "" {
		port = "8000"
	}

	return &Server{
		config: cfg,
		engine: engine,
		log:    log,
		http: &http.Server{
			Addr:              net.JoinHostPort("", port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until Shutdown is called. It returns nil after a graceful stop.
func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
