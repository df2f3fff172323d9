// Package broker drives the login flow against the provider and guards the
// business routes with first-party session tokens.
package broker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/identity"
	"github.com/sulavpanthi/xero-oauth/krypto"
	"github.com/sulavpanthi/xero-oauth/oauth"
)

// Resources is the subset of provider APIs the business operations use.
type Resources interface {
	Connections(ctx context.Context, accessToken string) ([]oauth.Connection, error)
	Invoices(ctx context.Context, accessToken, tenantID string) (*oauth.RawResponse, error)
}

// SessionTokens is the first-party credential pair handed out after login.
type SessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Flow runs login, callback and session refresh, and the business operations
// that need a provider access token.
type Flow struct {
	store     identity.Store
	provider  oauth.Provider
	manager   *oauth.TokenManager
	resources Resources
	codec     *krypto.SessionCodec
	log       *zap.Logger
}

// NewFlow wires a flow. A nil logger discards output.
func NewFlow(store identity.Store, provider oauth.Provider, manager *oauth.TokenManager, resources Resources, codec *krypto.SessionCodec, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		store:     store,
		provider:  provider,
		manager:   manager,
		resources: resources,
		codec:     codec,
		log:       log,
	}
}

// Initiate creates a placeholder record and returns the consent URL carrying
// its id as state.
func (f *Flow) Initiate(ctx context.Context) (redirectURL, id string, err error) {
	id, err = f.store.CreatePlaceholder(ctx)
	if err != nil {
		return "", "", fmt.Errorf("create placeholder: %w", err)
	}

	f.log.Info("login initiated", zap.String("record_id", id))
	return f.provider.AuthURL(id), id, nil
}

// Callback completes the login for the record named by state.
//
// state is trusted as the record id; nothing binds it to the browser that
// started the login. The record is looked up before the code is exchanged so
// an unknown state never spends a code. A failed exchange leaves the
// placeholder behind.
func (f *Flow) Callback(ctx context.Context, code, state string) (*SessionTokens, error) {
	if code == "" || state == "" {
		return nil, fmt.Errorf("%w: code and state are required", ErrMissingParameter)
	}

	if _, err := f.store.Find(ctx, state); err != nil {
		return nil, userError(err)
	}

	if _, err := f.manager.Authorize(ctx, state, code); err != nil {
		return nil, userError(err)
	}

	access, err := f.codec.Issue(state, krypto.KindAccess, nil)
	if err != nil {
		return nil, err
	}
	refresh, err := f.codec.Issue(state, krypto.KindRefresh, nil)
	if err != nil {
		return nil, err
	}

	return &SessionTokens{AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshSession trades a first-party refresh token for a new access token.
// The provider is never called.
func (f *Flow) RefreshSession(ctx context.Context, refreshToken string) (string, error) {
	claims, err := f.codec.Verify(refreshToken, krypto.KindRefresh)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	}

	if _, err := f.store.Find(ctx, claims.Subject); err != nil {
		return "", userError(err)
	}

	return f.codec.Issue(claims.Subject, krypto.KindAccess, nil)
}

// Tenant returns the tenant id of the first connection granted to record id.
func (f *Flow) Tenant(ctx context.Context, id string) (string, error) {
	accessToken, err := f.manager.AccessToken(ctx, id)
	if err != nil {
		return "", userError(err)
	}

	conns, err := f.resources.Connections(ctx, accessToken)
	if err != nil {
		return "", err
	}
	if len(conns) == 0 {
		return "", ErrNoTenants
	}
	if len(conns) > 1 {
		f.log.Debug("several tenants connected, using the first",
			zap.String("record_id", id),
			zap.Int("tenants", len(conns)))
	}
	return conns[0].TenantID, nil
}

// Invoices fetches the invoices of tenantID on behalf of record id. The
// upstream response is returned for forwarding.
func (f *Flow) Invoices(ctx context.Context, id, tenantID string) (*oauth.RawResponse, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrMissingParameter)
	}

	accessToken, err := f.manager.AccessToken(ctx, id)
	if err != nil {
		return nil, userError(err)
	}
	return f.resources.Invoices(ctx, accessToken, tenantID)
}

// Me returns the public profile of record id.
func (f *Flow) Me(ctx context.Context, id string) (*identity.Profile, error) {
	rec, err := f.store.Find(ctx, id)
	if err != nil {
		return nil, userError(err)
	}
	profile := rec.Profile()
	return &profile, nil
}

func userError(err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrUserNotFound, err)
	}
	return err
}
