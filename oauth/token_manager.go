package oauth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/identity"
)

// TokenManager keeps the provider tokens of identity records usable.
//
// There is no per-record serialization: two requests that both observe an
// expired record each refresh it and the last save wins.
type TokenManager struct {
	store    identity.Store
	provider Provider
	log      *zap.Logger
	now      func() time.Time
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithManagerClock replaces time.Now when deciding whether a record is expired.
func WithManagerClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) TokenManagerOption {
	return func(m *TokenManager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewTokenManager creates a token manager over store and provider.
func NewTokenManager(store identity.Store, provider Provider, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		store:    store,
		provider: provider,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authorize exchanges code for provider tokens and saves them on record id.
func (m *TokenManager) Authorize(ctx context.Context, id, code string) (*Token, error) {
	token, err := m.provider.Exchange(ctx, code)
	if err != nil {
		m.log.Warn("token exchange failed",
			zap.String("record_id", id),
			zap.Int("status", StatusCode(err)),
			zap.Error(err))
		return nil, err
	}

	if err := m.store.SaveProviderTokens(ctx, id, token.AccessToken, token.RefreshToken, token.ExpiresIn); err != nil {
		return nil, fmt.Errorf("save provider tokens: %w", err)
	}

	m.log.Info("provider authorization completed",
		zap.String("record_id", id),
		zap.Int("expires_in", token.ExpiresIn))
	return token, nil
}

// AccessToken returns a usable provider access token for record id.
//
// A record whose expiry is still in the future is served from the store with
// no provider call. An expired record is refreshed exactly once and saved
// before the new token is returned. A rejected refresh is returned as is;
// the stale token is never handed out.
func (m *TokenManager) AccessToken(ctx context.Context, id string) (string, error) {
	rec, err := m.store.Find(ctx, id)
	if err != nil {
		return "", err
	}

	switch rec.State(m.now()) {
	case identity.StateUnauthorized:
		return "", ErrNotAuthorized
	case identity.StateValid:
		return *rec.AccessToken, nil
	}

	m.log.Debug("provider token expired, refreshing",
		zap.String("record_id", id),
		zap.Time("expired_at", *rec.ExpiresAt))

	token, err := m.provider.Refresh(ctx, *rec.RefreshToken)
	if err != nil {
		m.log.Warn("token refresh failed",
			zap.String("record_id", id),
			zap.Int("status", StatusCode(err)),
			zap.Error(err))
		return "", err
	}

	if err := m.store.SaveProviderTokens(ctx, id, token.AccessToken, token.RefreshToken, token.ExpiresIn); err != nil {
		return "", fmt.Errorf("save refreshed tokens: %w", err)
	}

	m.log.Info("provider token refreshed",
		zap.String("record_id", id),
		zap.Bool("rotated", token.RefreshToken != *rec.RefreshToken))
	return token.AccessToken, nil
}
