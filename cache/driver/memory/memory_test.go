package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sulavpanthi/xero-oauth/cache/driver"
)

func TestExpiryUsesClock(t *testing.T) {
	c := New(Config{CleanupInterval: time.Hour})
	defer c.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	now = now.Add(59 * time.Second)
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, driver.ErrKeyNotFound)

	assert.Equal(t, 1, c.Len())
	c.evictExpired()
	assert.Equal(t, 0, c.Len())
}

func TestMaxKeys(t *testing.T) {
	c := New(Config{MaxKeys: 1})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	// Overwriting an existing key is always allowed
	require.NoError(t, c.Set(ctx, "a", []byte("2"), 0))
	assert.ErrorIs(t, c.Set(ctx, "b", []byte("3"), 0), ErrMaxKeys)
}

func TestValuesAreCopied(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestCloseIsIdempotent(t *testing.T) {
	a := New(Config{Namespace: "a"})
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	// Close only stops the janitor, entries remain readable
	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}
