package oauth

import (
	"context"
	"net/http"
	"time"
)

// Provider is the OAuth2 authorization server this service brokers for.
type Provider interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// AuthURL returns the consent URL carrying state
	AuthURL(state string) string

	// Exchange trades an authorization code for tokens
	Exchange(ctx context.Context, code string) (*Token, error)

	// Refresh trades a refresh token for new tokens
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// Token is a provider token response.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// Connection is one tenant the user granted access to.
type Connection struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	TenantType     string `json:"tenantType"`
	TenantName     string `json:"tenantName"`
	CreatedDateUTC string `json:"createdDateUtc"`
	UpdatedDateUTC string `json:"updatedDateUtc"`
}

// RawResponse is an upstream response forwarded without interpretation.
type RawResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTTPClient interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
