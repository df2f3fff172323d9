package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status   HealthStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
	Duration string       `json:"duration"`
}

// HealthChecker runs the registered dependency checks
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]func(context.Context) error
	timeout   time.Duration
	startTime time.Time
}

// NewHealthChecker creates a health checker with no checks
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]func(context.Context) error),
		timeout:   5 * time.Second,
		startTime: time.Now(),
	}
}

// RegisterCheck registers a named check such as "database" or "cache"
func (h *HealthChecker) RegisterCheck(name string, check func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every registered check concurrently. Any failure makes the
// overall status unhealthy.
func (h *HealthChecker) Check(ctx context.Context) *HealthCheck {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		wg.Add(1)
		go func(i int, check func(context.Context) error) {
			defer wg.Done()
			results[i] = h.runCheck(ctx, check)
		}(i, check)
	}
	wg.Wait()

	health := &HealthCheck{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult, len(names)),
	}
	for i, name := range names {
		health.Checks[name] = results[i]
		if results[i].Status != HealthStatusHealthy {
			health.Status = HealthStatusUnhealthy
		}
	}
	return health
}

func (h *HealthChecker) runCheck(ctx context.Context, check func(context.Context) error) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := check(checkCtx); err != nil {
		return CheckResult{
			Status:   HealthStatusUnhealthy,
			Error:    err.Error(),
			Duration: time.Since(start).String(),
		}
	}
	return CheckResult{
		Status:   HealthStatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// handleHealth answers 200 when every check passes and 503 otherwise
func (h *HealthChecker) handleHealth(c *gin.Context) {
	health := h.Check(c.Request.Context())

	status := http.StatusOK
	if health.Status != HealthStatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
