// Package oauthtest runs an in-process stand-in for the Xero identity server
// and APIs.
package oauthtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/sulavpanthi/xero-oauth/oauth"
)

// ServerConfig configures the mock server
type ServerConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// TokenExpiry is reported as expires_in. Defaults to 30 minutes.
	TokenExpiry time.Duration

	// RotateRefreshTokens issues a new refresh token on every refresh grant
	RotateRefreshTokens bool

	Tenants []oauth.Connection
}

// Server simulates the provider's token endpoint, connections API and
// invoices API.
type Server struct {
	server *httptest.Server
	config ServerConfig

	mu             sync.Mutex
	seq            int
	codes          map[string]bool
	refreshTokens  map[string]bool
	accessTokens   map[string]bool
	failures       map[string]int
	exchangeCount  int
	refreshCount   int
	connectionsHit int
	invoicesHit    int
	lastTenant     string
}

// NewServer starts a mock server. Close it when done.
func NewServer(cfg ServerConfig) *Server {
	if cfg.ClientID == "" {
		cfg.ClientID = "test-client"
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = "test-secret"
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8000/callback"
	}
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 30 * time.Minute
	}

	s := &Server{
		config:        cfg,
		codes:         make(map[string]bool),
		refreshTokens: make(map[string]bool),
		accessTokens:  make(map[string]bool),
		failures:      make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/connections", s.handleConnections)
	mux.HandleFunc("/invoices", s.handleInvoices)
	s.server = httptest.NewServer(mux)

	return s
}

// URL returns the mock server URL
func (s *Server) URL() string {
	return s.server.URL
}

// Client returns an HTTP client for the mock server
func (s *Server) Client() *http.Client {
	return s.server.Client()
}

// Close shuts down the mock server
func (s *Server) Close() {
	s.server.Close()
}

// Config returns a provider configuration pointing at the mock server.
func (s *Server) Config() oauth.Config {
	return oauth.Config{
		ClientID:         s.config.ClientID,
		ClientSecret:     s.config.ClientSecret,
		RedirectURL:      s.config.RedirectURL,
		AuthorizationURL: s.server.URL + "/authorize",
		TokenURL:         s.server.URL + "/token",
		ConnectionURL:    s.server.URL + "/connections",
		InvoiceURL:       s.server.URL + "/invoices",
		Scopes:           []string{"offline_access", "openid", "accounting.transactions"},
		HTTPTimeout:      5 * time.Second,
	}
}

// IssueAuthorizationCode registers a single-use authorization code.
func (s *Server) IssueAuthorizationCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = true
}

// RevokeRefreshToken makes later refresh grants with token fail.
func (s *Server) RevokeRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, token)
}

// SetFailure makes endpoint ("token", "connections", "invoices") answer with
// status until cleared with status 0.
func (s *Server) SetFailure(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, endpoint)
		return
	}
	s.failures[endpoint] = status
}

// ExchangeCount returns how many authorization_code grants succeeded.
func (s *Server) ExchangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchangeCount
}

// RefreshCount returns how many refresh_token grants were attempted.
func (s *Server) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCount
}

// ResourceCalls returns how many connections and invoices calls were served.
func (s *Server) ResourceCalls() (connections, invoices int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionsHit, s.invoicesHit
}

// LastTenant returns the Xero-tenant-id of the last invoices call.
func (s *Server) LastTenant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTenant
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != s.config.ClientID || q.Get("redirect_uri") != s.config.RedirectURL {
		http.Error(w, "unknown client", http.StatusBadRequest)
		return
	}

	code := fmt.Sprintf("code_%d", time.Now().UnixNano())
	s.IssueAuthorizationCode(code)
	http.Redirect(w, r, s.config.RedirectURL+"?code="+code+"&state="+q.Get("state"), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if status := s.failure("token"); status != 0 {
		writeJSON(w, status, map[string]string{"error": "server_error", "error_description": "Token server error"})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok || clientID != s.config.ClientID || clientSecret != s.config.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if r.PostForm.Get("redirect_uri") != s.config.RedirectURL {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "redirect_uri mismatch"})
		return
	}

	s.mu.Lock()
	code := r.PostForm.Get("code")
	if !s.codes[code] {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	delete(s.codes, code)
	s.exchangeCount++
	access, refresh := s.issueLocked(true)
	s.mu.Unlock()

	s.writeToken(w, access, refresh)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	if r.PostForm.Get("client_id") != s.config.ClientID || r.PostForm.Get("client_secret") != s.config.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	s.mu.Lock()
	s.refreshCount++
	refreshToken := r.PostForm.Get("refresh_token")
	if !s.refreshTokens[refreshToken] {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	access, refresh := s.issueLocked(s.config.RotateRefreshTokens)
	if s.config.RotateRefreshTokens {
		delete(s.refreshTokens, refreshToken)
	}
	s.mu.Unlock()

	s.writeToken(w, access, refresh)
}

// issueLocked mints an access token and, when withRefresh is set, a refresh
// token. Callers hold s.mu.
func (s *Server) issueLocked(withRefresh bool) (access, refresh string) {
	s.seq++
	access = fmt.Sprintf("mock_access_%d", s.seq)
	s.accessTokens[access] = true
	if withRefresh {
		refresh = fmt.Sprintf("mock_refresh_%d", s.seq)
		s.refreshTokens[refresh] = true
	}
	return access, refresh
}

func (s *Server) writeToken(w http.ResponseWriter, access, refresh string) {
	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(s.config.TokenExpiry.Seconds()),
		"scope":        "openid offline_access accounting.transactions",
	}
	if refresh != "" {
		resp["refresh_token"] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessTokens[token]
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if status := s.failure("connections"); status != 0 {
		writeJSON(w, status, map[string]string{"Title": "Error", "Detail": "connections unavailable"})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"Title": "Unauthorized", "Detail": "TokenInvalid"})
		return
	}

	s.mu.Lock()
	s.connectionsHit++
	tenants := append([]oauth.Connection{}, s.config.Tenants...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, tenants)
}

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	if status := s.failure("invoices"); status != 0 {
		writeJSON(w, status, map[string]string{"Title": "Error", "Detail": "invoices unavailable"})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"Title": "Unauthorized", "Detail": "TokenInvalid"})
		return
	}

	tenant := r.Header.Get("Xero-tenant-id")
	s.mu.Lock()
	s.invoicesHit++
	s.lastTenant = tenant
	known := false
	for _, t := range s.config.Tenants {
		if t.TenantID == tenant {
			known = true
		}
	}
	s.mu.Unlock()

	if !known {
		writeJSON(w, http.StatusForbidden, map[string]string{"Type": "AuthorisationUnsuccessful"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"Status": "OK",
		"Invoices": []map[string]any{
			{"InvoiceID": "inv-1", "InvoiceNumber": "INV-0001", "Total": 100.0},
		},
	})
}

func (s *Server) failure(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[endpoint]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
