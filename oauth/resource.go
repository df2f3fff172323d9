package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResourceResponseBytes caps forwarded API bodies.
const maxResourceResponseBytes = 10 << 20

// ResourceClient calls the provider's APIs with a provider access token.
type ResourceClient struct {
	config     Config
	httpClient HTTPClient
	collector  MetricsCollector
}

// NewResourceClient creates a resource client. A nil client gets an
// http.Client bounded by cfg.HTTPTimeout; a nil collector disables metrics.
func NewResourceClient(cfg Config, client HTTPClient, collector MetricsCollector) *ResourceClient {
	if client == nil {
		timeout := cfg.HTTPTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ResourceClient{config: cfg, httpClient: client, collector: collector}
}

// Connections lists the tenants the access token was granted for.
// A non-2xx response is an *Error wrapping ErrUpstreamRequest.
func (c *ResourceClient) Connections(ctx context.Context, accessToken string) ([]Connection, error) {
	raw, err := c.get(ctx, "connections", c.config.ConnectionURL, accessToken, nil)
	if err != nil {
		return nil, err
	}

	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		var errResp struct {
			Title  string `json:"Title"`
			Detail string `json:"Detail"`
		}
		_ = json.Unmarshal(raw.Body, &errResp)
		return nil, &Error{
			Op:          "connections",
			Provider:    "xero",
			StatusCode:  raw.StatusCode,
			Description: errResp.Detail,
			Err:         ErrUpstreamRequest,
		}
	}

	var conns []Connection
	if err := json.Unmarshal(raw.Body, &conns); err != nil {
		return nil, &Error{Op: "connections", Provider: "xero", StatusCode: raw.StatusCode, Err: ErrUpstreamRequest, Cause: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}
	return conns, nil
}

// Invoices fetches the invoices of tenantID. The upstream status and body are
// returned as-is for forwarding; only transport failures are errors.
func (c *ResourceClient) Invoices(ctx context.Context, accessToken, tenantID string) (*RawResponse, error) {
	return c.get(ctx, "invoices", c.config.InvoiceURL, accessToken, map[string]string{
		"Xero-tenant-id": tenantID,
	})
}

func (c *ResourceClient) get(ctx context.Context, op, endpoint, accessToken string, headers map[string]string) (*RawResponse, error) {
	start := time.Now()
	raw, err := c.do(ctx, op, endpoint, accessToken, headers)
	if c.collector != nil {
		c.collector.RecordUpstreamRequest("xero", op, err == nil && raw.StatusCode < 300, time.Since(start))
		if err != nil {
			c.collector.RecordError("xero", op, getErrorType(err))
		}
	}
	return raw, err
}

func (c *ResourceClient) do(ctx context.Context, op, endpoint, accessToken string, headers map[string]string) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Provider: "xero", Err: ErrUpstreamRequest, Cause: fmt.Errorf("%w: %w", ErrNetworkError, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceResponseBytes))
	if err != nil {
		return nil, &Error{Op: op, Provider: "xero", StatusCode: resp.StatusCode, Err: ErrUpstreamRequest, Cause: fmt.Errorf("%w: %w", ErrNetworkError, err)}
	}

	return &RawResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
