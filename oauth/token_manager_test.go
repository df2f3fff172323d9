package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sulavpanthi/xero-oauth/identity"
)

// fakeProvider counts grants and hands out numbered tokens.
type fakeProvider struct {
	exchanges     atomic.Int32
	refreshes     atomic.Int32
	refreshErr    error
	exchangeIn    int
	beforeRefresh func()
}

func (p *fakeProvider) Name() string                { return "fake" }
func (p *fakeProvider) AuthURL(state string) string { return "https://fake/authorize?state=" + state }

func (p *fakeProvider) Exchange(_ context.Context, code string) (*Token, error) {
	p.exchanges.Add(1)
	if code == "bad" {
		return nil, ParseError("fake", "exchange", 400, "invalid_grant", "", ErrExchangeFailed)
	}
	expiresIn := p.exchangeIn
	if expiresIn == 0 {
		expiresIn = 1800
	}
	return &Token{AccessToken: "AT1", RefreshToken: "RT1", ExpiresIn: expiresIn}, nil
}

func (p *fakeProvider) Refresh(_ context.Context, refreshToken string) (*Token, error) {
	n := p.refreshes.Add(1)
	if p.beforeRefresh != nil {
		p.beforeRefresh()
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return &Token{
		AccessToken:  fmt.Sprintf("AT-refreshed-%d", n),
		RefreshToken: fmt.Sprintf("RT-refreshed-%d", n),
		ExpiresIn:    1800,
	}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManagerFixture(t *testing.T) (*TokenManager, *identity.MemoryStore, *fakeProvider, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := identity.NewMemoryStore(identity.WithClock(clock.Now))
	provider := &fakeProvider{}
	return NewTokenManager(store, provider, WithManagerClock(clock.Now)), store, provider, clock
}

func TestAuthorizeSavesTokens(t *testing.T) {
	m, store, provider, clock := newManagerFixture(t)
	ctx := context.Background()

	id, err := store.CreatePlaceholder(ctx)
	require.NoError(t, err)

	token, err := m.Authorize(ctx, id, "good")
	require.NoError(t, err)
	assert.Equal(t, "AT1", token.AccessToken)
	assert.Equal(t, int32(1), provider.exchanges.Load())

	rec, err := store.Find(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.AccessToken)
	require.NotNil(t, rec.RefreshToken)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, "AT1", *rec.AccessToken)
	assert.Equal(t, "RT1", *rec.RefreshToken)
	assert.True(t, clock.Now().Add(1800*time.Second).Equal(*rec.ExpiresAt))
}

func TestAuthorizeExchangeFailureLeavesRecordEmpty(t *testing.T) {
	m, store, _, clock := newManagerFixture(t)
	ctx := context.Background()

	id, err := store.CreatePlaceholder(ctx)
	require.NoError(t, err)

	_, err = m.Authorize(ctx, id, "bad")
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Equal(t, 400, StatusCode(err))

	rec, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, identity.StateUnauthorized, rec.State(clock.Now()))
}

func TestAccessTokenUnauthorized(t *testing.T) {
	m, store, provider, _ := newManagerFixture(t)
	ctx := context.Background()

	id, err := store.CreatePlaceholder(ctx)
	require.NoError(t, err)

	_, err = m.AccessToken(ctx, id)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Zero(t, provider.refreshes.Load())
}

func TestAccessTokenUnknownRecord(t *testing.T) {
	m, _, _, _ := newManagerFixture(t)

	_, err := m.AccessToken(context.Background(), "missing")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestAccessTokenValidMakesNoProviderCall(t *testing.T) {
	m, store, provider, clock := newManagerFixture(t)
	ctx := context.Background()

	id, err := store.CreatePlaceholder(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveProviderTokens(ctx, id, "AT1", "RT1", 1800))

	clock.Advance(1799 * time.Second)
	at, err := m.AccessToken(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "AT1", at)
	assert.Zero(t, provider.refreshes.Load())
}

func TestAccessTokenExpiredRefreshesOnce(t *testing.T) {
	m, store, provider, clock := newManagerFixture(t)
	ctx := context.Background()

	id, err := store.CreatePlaceholder(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveProviderTokens(ctx, id, "AT1", "RT1", 1800))

	// Expiry equal to now counts as expired
	clock.Advance(1800 * time.Second)
	at, err := m.AccessToken(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "AT-refreshed-1", at)
	assert.Equal(t, int32(1), provider.refreshes.Load())

	rec, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "AT-refreshed-1", *rec.AccessToken)
	assert.Equal(t, "RT-refreshed-1", *rec.RefreshToken)
	assert.True(t, clock.Now().Add(1800*time.Second).Equal(*rec.ExpiresAt))

	// Now valid again
	at, err = m.AccessToken(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "AT-refreshed-1", at)
	assert.Equal(t, int32(1), provider.refreshes.Load())
}

func TestAccessTokenRefreshRejected(t *testing.T) {
	m, store, provider, clock := newManagerFixture(t)
	ctx := context.Background()
	provider.refreshErr = ParseError("fake", "refresh", 400, "invalid_grant", "revoked", ErrRefreshFailed)

	id, err := store.CreatePlaceholder(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveProviderTokens(ctx, id, "AT1", "RT1", 60))
	clock.Advance(time.Hour)

	_, err = m.AccessToken(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, 400, StatusCode(err))
	assert.Equal(t, int32(1), provider.refreshes.Load())

	rec, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "AT1", *rec.AccessToken, "failed refresh must not touch the record")
	assert.Equal(t, "RT1", *rec.RefreshToken)
}

// Two callers that both see an expired record each refresh it. Both succeed
// and the record holds one of the two results.
func TestAccessTokenConcurrentRefreshLastWriteWins(t *testing.T) {
	m, store, provider, clock := newManagerFixture(t)
	ctx := context.Background()

	id, err := store.CreatePlaceholder(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveProviderTokens(ctx, id, "AT1", "RT1", 60))
	clock.Advance(time.Hour)

	// Hold both refreshes until both callers have read the expired record
	var arrived sync.WaitGroup
	arrived.Add(2)
	provider.beforeRefresh = func() {
		arrived.Done()
		arrived.Wait()
	}

	results := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.AccessToken(ctx, id)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errors.Join(errs...))
	assert.Equal(t, int32(2), provider.refreshes.Load())
	assert.ElementsMatch(t, []string{"AT-refreshed-1", "AT-refreshed-2"}, results)

	rec, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, results, *rec.AccessToken)
	assert.Equal(t, strings.Replace(*rec.AccessToken, "AT", "RT", 1), *rec.RefreshToken,
		"access and refresh token come from the same refresh")
}
