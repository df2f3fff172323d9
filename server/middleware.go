package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sulavpanthi/xero-oauth/broker"
	"github.com/sulavpanthi/xero-oauth/krypto"
)

const (
	// userIDKey holds the authenticated record id in the gin context
	userIDKey    = "userID"
	requestIDKey = "requestID"

	requestIDHeader = "X-Request-ID"
)

// Middleware provides the HTTP middleware of the service
type Middleware struct {
	config  Config
	log     *zap.Logger
	limiter *clientLimiter
}

// NewMiddleware creates the middleware set
func NewMiddleware(cfg Config, log *zap.Logger) *Middleware {
	m := &Middleware{config: cfg, log: log}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = cfg.RateLimit
		}
		m.limiter = newClientLimiter(rate.Limit(cfg.RateLimit), burst, 10*time.Minute)
	}
	return m
}

// SecurityHeaders adds security headers to all responses
func (m *Middleware) SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.config.SecurityHeaders {
			h := c.Writer.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")

			if m.config.EnableHSTS && c.Request.TLS != nil {
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", m.config.HSTSMaxAge))
			}
		}
		c.Next()
	}
}

// RateLimit limits requests per client IP
func (m *Middleware) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.limiter == nil {
			c.Next()
			return
		}

		limiter := m.limiter.get(c.ClientIP())
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", m.config.RateLimit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int(math.Max(0, limiter.Tokens()-1))))

		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Too many requests"})
			return
		}
		c.Next()
	}
}

// RequestLogging logs every request with its status and latency. The query
// string is never logged because the callback carries the authorization code.
func (m *Middleware) RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID, _ = krypto.GenerateSecureToken(8)
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path += "?[REDACTED]"
		}

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()),
		}
		if userID := c.GetString(userIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			m.log.Error("request", fields...)
		case status >= 400:
			m.log.Warn("request", fields...)
		default:
			m.log.Info("request", fields...)
		}
	}
}

// Timeout bounds the request context. Provider calls made with the request
// context are cancelled when it expires.
func (m *Middleware) Timeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.config.RequestTimeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), m.config.RequestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth admits only requests with a valid first-party access token and
// stores the record id under "userID".
func RequireAuth(gate *broker.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := gate.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			detail := "Could not validate credentials"
			if errors.Is(err, krypto.ErrTokenExpired) {
				detail = "Token has expired"
			}
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail})
			return
		}

		c.Set(userIDKey, subject)
		c.Next()
	}
}

// clientLimiter keeps one token bucket per client key and drops buckets idle
// for longer than ttl.
type clientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	clients  map[string]*clientEntry
	lastScan time.Time
	now      func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(limit rate.Limit, burst int, ttl time.Duration) *clientLimiter {
	return &clientLimiter{
		limit:    limit,
		burst:    burst,
		ttl:      ttl,
		clients:  make(map[string]*clientEntry),
		lastScan: time.Now(),
		now:      time.Now,
	}
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastScan) > l.ttl {
		for k, e := range l.clients {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}

	e, ok := l.clients[key]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
