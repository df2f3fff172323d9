package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxTokenResponseBytes caps how much of a token endpoint response is read.
const maxTokenResponseBytes = 1 << 20

// XeroProvider talks to the Xero identity server.
//
// The two grants authenticate differently: the code exchange sends the client
// credentials as HTTP Basic auth, the refresh grant sends them in the form body.
type XeroProvider struct {
	config     Config
	httpClient HTTPClient
	now        func() time.Time
}

// NewXeroProvider validates cfg and creates the provider. A nil client gets an
// http.Client bounded by cfg.HTTPTimeout.
func NewXeroProvider(cfg Config, client HTTPClient) (*XeroProvider, error) {
	cfg.Scopes = normalizeScopes(cfg.Scopes)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if client == nil {
		timeout := cfg.HTTPTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &XeroProvider{config: cfg, httpClient: client, now: time.Now}, nil
}

func (p *XeroProvider) Name() string {
	return "xero"
}

// AuthURL returns the authorization URL
func (p *XeroProvider) AuthURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"scope":         {strings.Join(p.config.Scopes, " ")},
		"state":         {state},
	}

	sep := "?"
	if strings.Contains(p.config.AuthorizationURL, "?") {
		sep = "&"
	}
	return p.config.AuthorizationURL + sep + params.Encode()
}

// Exchange exchanges an authorization code for tokens
func (p *XeroProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {p.config.RedirectURL},
	}

	return p.tokenRequest(ctx, "exchange", data, true, ErrExchangeFailed)
}

// Refresh refreshes the access token using a refresh token. When the
// provider does not rotate the refresh token the old one is kept.
func (p *XeroProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
	}

	token, err := p.tokenRequest(ctx, "refresh", data, false, ErrRefreshFailed)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

func (p *XeroProvider) tokenRequest(ctx context.Context, op string, data url.Values, basicAuth bool, sentinel error) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if basicAuth {
		req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Provider: p.Name(), Err: sentinel, Cause: fmt.Errorf("%w: %w", ErrNetworkError, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, &Error{Op: op, Provider: p.Name(), StatusCode: resp.StatusCode, Err: sentinel, Cause: fmt.Errorf("%w: %w", ErrNetworkError, err)}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		// Non-JSON error bodies still carry the status
		_ = json.Unmarshal(body, &errResp)
		return nil, ParseError(p.Name(), op, resp.StatusCode, errResp.Error, errResp.ErrorDescription, sentinel)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		IDToken      string `json:"id_token"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &Error{Op: op, Provider: p.Name(), StatusCode: resp.StatusCode, Err: sentinel, Cause: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}
	if tokenResp.AccessToken == "" || tokenResp.ExpiresIn < 0 {
		return nil, &Error{Op: op, Provider: p.Name(), StatusCode: resp.StatusCode, Err: sentinel, Cause: fmt.Errorf("%w: missing access_token or invalid expires_in", ErrInvalidResponse)}
	}
	// The code grant must yield a refresh token; the record cannot be stored without one.
	if sentinel == ErrExchangeFailed && tokenResp.RefreshToken == "" {
		return nil, &Error{Op: op, Provider: p.Name(), StatusCode: resp.StatusCode, Err: sentinel, Cause: fmt.Errorf("%w: missing refresh_token", ErrInvalidResponse)}
	}

	return &Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
		ExpiresAt:    p.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
		IDToken:      tokenResp.IDToken,
		Scope:        tokenResp.Scope,
	}, nil
}
