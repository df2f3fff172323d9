package oauth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MetricsCollector collects and reports provider call metrics
type MetricsCollector interface {
	// RecordTokenExchange records an authorization code exchange
	RecordTokenExchange(provider string, success bool, duration time.Duration)
	// RecordTokenRefresh records a refresh grant
	RecordTokenRefresh(provider string, success bool, duration time.Duration)
	// RecordUpstreamRequest records a resource API call such as connections or invoices
	RecordUpstreamRequest(provider, operation string, success bool, duration time.Duration)
	// RecordError records a classified error
	RecordError(provider, operation, errorType string)
	// GetMetrics returns a snapshot of current metrics
	GetMetrics() *Metrics
	// Reset resets all metrics
	Reset()
}

// Metrics represents collected provider metrics
type Metrics struct {
	TokenExchanges   MetricCounter `json:"token_exchanges"`
	TokenRefreshes   MetricCounter `json:"token_refreshes"`
	UpstreamRequests MetricCounter `json:"upstream_requests"`

	// Errors are keyed by "provider:operation:type"
	Errors map[string]int64 `json:"errors"`

	ResponseTimes   map[string]ResponseTime    `json:"response_times"`
	ProviderMetrics map[string]*ProviderMetric `json:"provider_metrics"`

	StartTime     time.Time `json:"start_time"`
	LastResetTime time.Time `json:"last_reset_time"`
}

// MetricCounter represents a counter metric
type MetricCounter struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

func (m *MetricCounter) add(success bool) {
	m.Total++
	if success {
		m.Success++
	} else {
		m.Failed++
	}
}

// ResponseTime represents response time statistics
type ResponseTime struct {
	Count   int64         `json:"count"`
	Total   time.Duration `json:"total"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Average time.Duration `json:"average"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// ProviderMetric represents metrics for a specific provider
type ProviderMetric struct {
	TokenExchanges   MetricCounter `json:"token_exchanges"`
	TokenRefreshes   MetricCounter `json:"token_refreshes"`
	UpstreamRequests MetricCounter `json:"upstream_requests"`
	Errors           int64         `json:"errors"`
	LastError        time.Time     `json:"last_error,omitempty"`
	LastSuccess      time.Time     `json:"last_success,omitempty"`
}

// DefaultMetricsCollector implements MetricsCollector with in-memory storage
type DefaultMetricsCollector struct {
	mu        sync.RWMutex
	metrics   *Metrics
	durations map[string][]time.Duration
	now       func() time.Time
}

// NewDefaultMetricsCollector creates a new default metrics collector
func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	c := &DefaultMetricsCollector{now: time.Now}
	c.Reset()
	return c
}

// RecordTokenExchange records an authorization code exchange
func (c *DefaultMetricsCollector) RecordTokenExchange(provider string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.TokenExchanges.add(success)
	pm := c.providerMetric(provider, success)
	pm.TokenExchanges.add(success)
	c.recordDuration("exchange", duration)
	c.recordDuration("exchange_"+provider, duration)
}

// RecordTokenRefresh records a refresh grant
func (c *DefaultMetricsCollector) RecordTokenRefresh(provider string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.TokenRefreshes.add(success)
	pm := c.providerMetric(provider, success)
	pm.TokenRefreshes.add(success)
	c.recordDuration("refresh", duration)
	c.recordDuration("refresh_"+provider, duration)
}

// RecordUpstreamRequest records a resource API call
func (c *DefaultMetricsCollector) RecordUpstreamRequest(provider, operation string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.UpstreamRequests.add(success)
	pm := c.providerMetric(provider, success)
	pm.UpstreamRequests.add(success)
	c.recordDuration(operation, duration)
	c.recordDuration(operation+"_"+provider, duration)
}

// RecordError records an error
func (c *DefaultMetricsCollector) RecordError(provider, operation, errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.Errors[provider+":"+operation+":"+errorType]++
	pm := c.providerMetric(provider, false)
	pm.Errors++
}

// GetMetrics returns a copy of the current metrics with response time
// statistics computed from the retained samples.
func (c *DefaultMetricsCollector) GetMetrics() *Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := *c.metrics
	snapshot.Errors = make(map[string]int64, len(c.metrics.Errors))
	for k, v := range c.metrics.Errors {
		snapshot.Errors[k] = v
	}
	snapshot.ProviderMetrics = make(map[string]*ProviderMetric, len(c.metrics.ProviderMetrics))
	for k, v := range c.metrics.ProviderMetrics {
		pm := *v
		snapshot.ProviderMetrics[k] = &pm
	}
	snapshot.ResponseTimes = make(map[string]ResponseTime, len(c.durations))
	for k, d := range c.durations {
		snapshot.ResponseTimes[k] = calculateResponseTimeStats(d)
	}
	return &snapshot
}

// Reset resets all metrics
func (c *DefaultMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.metrics = &Metrics{
		Errors:          make(map[string]int64),
		ResponseTimes:   make(map[string]ResponseTime),
		ProviderMetrics: make(map[string]*ProviderMetric),
		StartTime:       now,
		LastResetTime:   now,
	}
	c.durations = make(map[string][]time.Duration)
}

func (c *DefaultMetricsCollector) providerMetric(provider string, success bool) *ProviderMetric {
	pm, ok := c.metrics.ProviderMetrics[provider]
	if !ok {
		pm = &ProviderMetric{}
		c.metrics.ProviderMetrics[provider] = pm
	}
	if success {
		pm.LastSuccess = c.now()
	} else {
		pm.LastError = c.now()
	}
	return pm
}

func (c *DefaultMetricsCollector) recordDuration(key string, duration time.Duration) {
	c.durations[key] = append(c.durations[key], duration)

	// Keep only last 1000 samples
	if len(c.durations[key]) > 1000 {
		c.durations[key] = c.durations[key][100:]
	}
}

func calculateResponseTimeStats(durations []time.Duration) ResponseTime {
	if len(durations) == 0 {
		return ResponseTime{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return ResponseTime{
		Count:   int64(len(sorted)),
		Total:   total,
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Average: total / time.Duration(len(sorted)),
		P50:     sorted[len(sorted)*50/100],
		P95:     sorted[len(sorted)*95/100],
		P99:     sorted[len(sorted)*99/100],
	}
}

// InstrumentedProvider wraps a Provider with metrics
type InstrumentedProvider struct {
	Provider
	collector MetricsCollector
}

// NewInstrumentedProvider creates a new instrumented provider
func NewInstrumentedProvider(provider Provider, collector MetricsCollector) *InstrumentedProvider {
	return &InstrumentedProvider{Provider: provider, collector: collector}
}

// Exchange exchanges an authorization code for tokens with monitoring
func (p *InstrumentedProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	start := time.Now()
	token, err := p.Provider.Exchange(ctx, code)
	p.collector.RecordTokenExchange(p.Name(), err == nil, time.Since(start))
	if err != nil {
		p.collector.RecordError(p.Name(), "exchange", getErrorType(err))
	}
	return token, err
}

// Refresh refreshes a token with monitoring
func (p *InstrumentedProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	start := time.Now()
	token, err := p.Provider.Refresh(ctx, refreshToken)
	p.collector.RecordTokenRefresh(p.Name(), err == nil, time.Since(start))
	if err != nil {
		p.collector.RecordError(p.Name(), "refresh", getErrorType(err))
	}
	return token, err
}

func getErrorType(err error) string {
	switch {
	case errors.Is(err, ErrInvalidGrant):
		return "invalid_grant"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrNetworkError):
		return "network"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrServerError), errors.Is(err, ErrTemporarilyUnavailable):
		return "server"
	default:
		return "unknown"
	}
}
