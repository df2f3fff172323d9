// Package identity persists identity records: the link between an end-user
// and the provider tokens obtained for them.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("identity: record not found")
	ErrPartialTokens = errors.New("identity: access token, refresh token and expiry must be saved together")
)

// Store is the credential store contract.
type Store interface {
	// CreatePlaceholder inserts an empty record and returns its new id.
	CreatePlaceholder(ctx context.Context) (string, error)

	// Find returns the record or ErrNotFound.
	Find(ctx context.Context, id string) (*Record, error)

	// SaveProviderTokens overwrites the three provider fields of record id in
	// one atomic write. expiresIn is in seconds and is converted to an
	// absolute time using the store's clock at write time.
	SaveProviderTokens(ctx context.Context, id, accessToken, refreshToken string, expiresIn int) error
}

type options struct {
	now func() time.Time
}

// Option configures a store.
type Option func(*options)

// WithClock replaces time.Now when computing expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validateTokens(accessToken, refreshToken string, expiresIn int) error {
	if accessToken == "" || refreshToken == "" || expiresIn < 0 {
		return ErrPartialTokens
	}
	return nil
}

func expiryFrom(now time.Time, expiresIn int) time.Time {
	return now.Add(time.Duration(expiresIn) * time.Second).UTC()
}
