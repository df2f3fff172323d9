package broker

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sulavpanthi/xero-oauth/cache"
	"github.com/sulavpanthi/xero-oauth/identity"
	"github.com/sulavpanthi/xero-oauth/krypto"
	"github.com/sulavpanthi/xero-oauth/oauth"
	"github.com/sulavpanthi/xero-oauth/oauth/oauthtest"
)

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

type fixture struct {
	flow  *Flow
	gate  *Gate
	codec *krypto.SessionCodec
	store *identity.MemoryStore
	xero  *oauthtest.Server
	clock *testClock
}

func newFixture(t *testing.T, tenants ...oauth.Connection) *fixture {
	t.Helper()
	return buildFixture(t, false, tenants)
}

// newComposedFixture runs the flow over the store stack the service builds:
// sealed tokens on top of a read-through cache on top of the base store.
// f.store is the base store and holds ciphertext.
func newComposedFixture(t *testing.T, tenants ...oauth.Connection) *fixture {
	t.Helper()
	return buildFixture(t, true, tenants)
}

func buildFixture(t *testing.T, composed bool, tenants []oauth.Connection) *fixture {
	t.Helper()

	xero := oauthtest.NewServer(oauthtest.ServerConfig{Tenants: tenants, RotateRefreshTokens: true})
	t.Cleanup(xero.Close)

	clock := &testClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	base := identity.NewMemoryStore(identity.WithClock(clock.Now))

	var store identity.Store = base
	if composed {
		c, err := cache.New(cache.Config{Driver: "memory", Namespace: "broker-test"})
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })

		store, err = identity.Compose(base, c, identity.Config{
			CacheTTL:           5 * time.Minute,
			TokenEncryptionKey: strings.Repeat("k", 32),
		}, nil, identity.WithClock(clock.Now))
		require.NoError(t, err)
	}

	provider, err := oauth.NewXeroProvider(xero.Config(), xero.Client())
	require.NoError(t, err)
	manager := oauth.NewTokenManager(store, provider, oauth.WithManagerClock(clock.Now))
	resources := oauth.NewResourceClient(xero.Config(), xero.Client(), nil)

	codec, err := krypto.NewSessionCodec(krypto.SessionConfig{
		SecretKey:                 "access-secret",
		RefreshSecretKey:          "refresh-secret",
		Algorithm:                 "HS256",
		AccessTokenExpiryMinutes:  30,
		RefreshTokenExpiryMinutes: 1440,
	}, krypto.WithClock(clock.Now))
	require.NoError(t, err)

	return &fixture{
		flow:  NewFlow(store, provider, manager, resources, codec, nil),
		gate:  NewGate(codec),
		codec: codec,
		store: base,
		xero:  xero,
		clock: clock,
	}
}

// login runs Initiate and Callback and returns the record id and tokens.
func (f *fixture) login(t *testing.T) (string, *SessionTokens) {
	t.Helper()
	ctx := context.Background()

	redirect, id, err := f.flow.Initiate(ctx)
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, id, u.Query().Get("state"))

	code := "code-" + id
	f.xero.IssueAuthorizationCode(code)
	tokens, err := f.flow.Callback(ctx, code, id)
	require.NoError(t, err)
	return id, tokens
}

var demoTenants = []oauth.Connection{
	{ID: "c1", TenantID: "tenant-1", TenantType: "ORGANISATION", TenantName: "Demo Co"},
	{ID: "c2", TenantID: "tenant-2", TenantType: "ORGANISATION", TenantName: "Other Co"},
}

func TestInitiateCreatesPlaceholder(t *testing.T) {
	f := newFixture(t)

	redirect, id, err := f.flow.Initiate(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, f.xero.URL()+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, id, u.Query().Get("state"))

	rec, err := f.store.Find(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, identity.StateUnauthorized, rec.State(f.clock.Now()))
	assert.Zero(t, f.xero.ExchangeCount())
}

func TestLoginScenario(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now()

	id, tokens := f.login(t)

	rec, err := f.store.Find(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec.AccessToken)
	require.NotNil(t, rec.RefreshToken)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, "mock_access_1", *rec.AccessToken)
	assert.Equal(t, "mock_refresh_1", *rec.RefreshToken)
	assert.True(t, start.Add(1800*time.Second).Equal(*rec.ExpiresAt))

	access, err := f.codec.Verify(tokens.AccessToken, krypto.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, id, access.Subject)

	refresh, err := f.codec.Verify(tokens.RefreshToken, krypto.KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, id, refresh.Subject)

	assert.Equal(t, 1, f.xero.ExchangeCount())
}

func TestCallbackMissingParameters(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct{ code, state string }{{"", "x"}, {"x", ""}, {"", ""}} {
		_, err := f.flow.Callback(context.Background(), tc.code, tc.state)
		assert.ErrorIs(t, err, ErrMissingParameter)
	}
}

func TestCallbackUnknownStateKeepsCode(t *testing.T) {
	f := newFixture(t)
	f.xero.IssueAuthorizationCode("code-1")

	_, err := f.flow.Callback(context.Background(), "code-1", "no-such-record")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, identity.ErrNotFound)
	assert.Zero(t, f.xero.ExchangeCount(), "code must not be spent on an unknown state")
}

func TestCallbackExchangeFailureLeavesPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, id, err := f.flow.Initiate(ctx)
	require.NoError(t, err)

	_, err = f.flow.Callback(ctx, "never-issued", id)
	require.Error(t, err)
	assert.ErrorIs(t, err, oauth.ErrExchangeFailed)
	assert.Equal(t, http.StatusBadRequest, oauth.StatusCode(err))

	rec, err := f.store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, identity.StateUnauthorized, rec.State(f.clock.Now()))
}

func TestCallbackUpstreamStatusPropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.xero.SetFailure("token", http.StatusServiceUnavailable)

	_, id, err := f.flow.Initiate(ctx)
	require.NoError(t, err)

	_, err = f.flow.Callback(ctx, "code", id)
	assert.ErrorIs(t, err, oauth.ErrExchangeFailed)
	assert.Equal(t, http.StatusServiceUnavailable, oauth.StatusCode(err))
}

func TestRefreshSession(t *testing.T) {
	f := newFixture(t)
	id, tokens := f.login(t)

	f.clock.Advance(10 * time.Minute)
	access, err := f.flow.RefreshSession(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)

	claims, err := f.codec.Verify(access, krypto.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)
	assert.Equal(t, f.clock.Now().Unix(), claims.IssuedAt.Unix())
	assert.Zero(t, f.xero.RefreshCount())
}

func TestRefreshSessionRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	_, tokens := f.login(t)

	_, err := f.flow.RefreshSession(context.Background(), tokens.AccessToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	assert.ErrorIs(t, err, krypto.ErrTokenInvalid)
}

func TestRefreshSessionExpiredLeavesRecordUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, tokens := f.login(t)

	before, err := f.store.Find(ctx, id)
	require.NoError(t, err)

	f.clock.Advance(1441 * time.Minute)
	_, err = f.flow.RefreshSession(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	assert.ErrorIs(t, err, krypto.ErrTokenExpired)

	after, err := f.store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, f.xero.RefreshCount())
}

func TestRefreshSessionUnknownRecord(t *testing.T) {
	f := newFixture(t)

	token, err := f.codec.Issue("ghost", krypto.KindRefresh, nil)
	require.NoError(t, err)

	_, err = f.flow.RefreshSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTenantReturnsFirstConnection(t *testing.T) {
	f := newFixture(t, demoTenants...)
	id, _ := f.login(t)

	tenant, err := f.flow.Tenant(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenant)
	assert.Zero(t, f.xero.RefreshCount())
}

func TestTenantRefreshesExpiredProviderTokenOnce(t *testing.T) {
	f := newFixture(t, demoTenants...)
	ctx := context.Background()
	id, _ := f.login(t)

	f.clock.Advance(31 * time.Minute)
	tenant, err := f.flow.Tenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenant)
	assert.Equal(t, 1, f.xero.RefreshCount())

	rec, err := f.store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mock_access_2", *rec.AccessToken)
	assert.Equal(t, "mock_refresh_2", *rec.RefreshToken)

	_, err = f.flow.Tenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.xero.RefreshCount())
	connections, _ := f.xero.ResourceCalls()
	assert.Equal(t, 2, connections)
}

func TestTenantRefreshRejected(t *testing.T) {
	f := newFixture(t, demoTenants...)
	ctx := context.Background()
	id, _ := f.login(t)

	f.xero.RevokeRefreshToken("mock_refresh_1")
	f.clock.Advance(time.Hour)

	_, err := f.flow.Tenant(ctx, id)
	assert.ErrorIs(t, err, oauth.ErrRefreshFailed)
	assert.Equal(t, http.StatusBadRequest, oauth.StatusCode(err))
	connections, _ := f.xero.ResourceCalls()
	assert.Zero(t, connections, "no business call after a failed refresh")
}

func TestTenantNone(t *testing.T) {
	f := newFixture(t)
	id, _ := f.login(t)

	_, err := f.flow.Tenant(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoTenants)
}

func TestTenantUnauthorizedRecord(t *testing.T) {
	f := newFixture(t, demoTenants...)
	_, id, err := f.flow.Initiate(context.Background())
	require.NoError(t, err)

	_, err = f.flow.Tenant(context.Background(), id)
	assert.ErrorIs(t, err, oauth.ErrNotAuthorized)
}

func TestInvoices(t *testing.T) {
	f := newFixture(t, demoTenants...)
	id, _ := f.login(t)

	raw, err := f.flow.Invoices(context.Background(), id, "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Contains(t, string(raw.Body), "INV-0001")
	assert.Equal(t, "tenant-2", f.xero.LastTenant())

	raw, err = f.flow.Invoices(context.Background(), id, "unknown-tenant")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, raw.StatusCode)

	_, err = f.flow.Invoices(context.Background(), id, "")
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestInvoicesValidProviderTokenSkipsRefresh(t *testing.T) {
	f := newFixture(t, demoTenants...)
	id, _ := f.login(t)

	f.clock.Advance(29 * time.Minute)
	raw, err := f.flow.Invoices(context.Background(), id, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Zero(t, f.xero.RefreshCount())
}

func TestInvoicesRefreshesExpiredProviderTokenOnce(t *testing.T) {
	f := newFixture(t, demoTenants...)
	ctx := context.Background()
	id, _ := f.login(t)

	f.clock.Advance(30 * time.Minute)
	raw, err := f.flow.Invoices(ctx, id, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Equal(t, 1, f.xero.RefreshCount())
	_, invoices := f.xero.ResourceCalls()
	assert.Equal(t, 1, invoices)

	rec, err := f.store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mock_refresh_2", *rec.RefreshToken)
	assert.True(t, f.clock.Now().Add(30*time.Minute).Equal(*rec.ExpiresAt))
}

// state is only a record id: a callback naming another login's record
// completes that record.
func TestCallbackAcceptsAnyExistingState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first, err := f.flow.Initiate(ctx)
	require.NoError(t, err)
	_, second, err := f.flow.Initiate(ctx)
	require.NoError(t, err)

	f.xero.IssueAuthorizationCode("code-for-first")
	tokens, err := f.flow.Callback(ctx, "code-for-first", second)
	require.NoError(t, err)

	claims, err := f.codec.Verify(tokens.AccessToken, krypto.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, second, claims.Subject)

	rec, err := f.store.Find(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, identity.StateValid, rec.State(f.clock.Now()))

	rec, err = f.store.Find(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, identity.StateUnauthorized, rec.State(f.clock.Now()))
}

func TestCallbackReplayOverwritesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.login(t)

	f.clock.Advance(5 * time.Minute)
	f.xero.IssueAuthorizationCode("second-code")
	tokens, err := f.flow.Callback(ctx, "second-code", id)
	require.NoError(t, err)

	claims, err := f.codec.Verify(tokens.RefreshToken, krypto.KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)

	rec, err := f.store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mock_access_2", *rec.AccessToken)
	assert.Equal(t, "mock_refresh_2", *rec.RefreshToken)
	assert.True(t, f.clock.Now().Add(30*time.Minute).Equal(*rec.ExpiresAt))
	assert.Equal(t, 2, f.xero.ExchangeCount())
}

func TestComposedStoreRefreshesExpiredProviderTokenOnce(t *testing.T) {
	f := newComposedFixture(t, demoTenants...)
	ctx := context.Background()
	id, _ := f.login(t)

	// Warm the cache with the valid record.
	_, err := f.flow.Tenant(ctx, id)
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	for i := 0; i < 3; i++ {
		raw, err := f.flow.Invoices(ctx, id, "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, raw.StatusCode)
	}
	assert.Equal(t, 1, f.xero.RefreshCount())

	sealed, err := f.store.Find(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, *sealed.AccessToken, "mock_access")
	assert.NotContains(t, *sealed.RefreshToken, "mock_refresh")
}

// Concurrent requests on an expired record each refresh. With rotation the
// slower refresh is rejected, but whatever lands must leave a record whose
// refresh token the provider still accepts.
func TestComposedStoreConcurrentRefresh(t *testing.T) {
	f := newComposedFixture(t, demoTenants...)
	ctx := context.Background()
	id, _ := f.login(t)

	_, err := f.flow.Tenant(ctx, id)
	require.NoError(t, err)
	f.clock.Advance(31 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.flow.Tenant(ctx, id)
		}()
	}
	wg.Wait()

	refreshes := f.xero.RefreshCount()
	require.GreaterOrEqual(t, refreshes, 1)

	f.clock.Advance(31 * time.Minute)
	tenant, err := f.flow.Tenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenant)
	assert.Equal(t, refreshes+1, f.xero.RefreshCount())
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	id, _ := f.login(t)

	name := "Ada"
	rec, err := f.store.Find(context.Background(), id)
	require.NoError(t, err)
	rec.Name = &name
	f.store.Put(*rec)

	profile, err := f.flow.Me(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, profile.ID)
	require.NotNil(t, profile.Name)
	assert.Equal(t, "Ada", *profile.Name)
	assert.Nil(t, profile.Email)

	_, err = f.flow.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
