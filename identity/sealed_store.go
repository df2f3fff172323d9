package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/sulavpanthi/xero-oauth/krypto"
)

// sealedPrefix marks a token value written by SealedStore. Values without it
// were written before encryption was enabled and are returned as stored.
const sealedPrefix = "sealed:"

// SealedStore encrypts provider tokens before they reach the wrapped Store
// and decrypts them on the way out.
type SealedStore struct {
	next   Store
	sealer krypto.Service
}

func NewSealedStore(next Store, sealer krypto.Service) *SealedStore {
	return &SealedStore{next: next, sealer: sealer}
}

func (s *SealedStore) CreatePlaceholder(ctx context.Context) (string, error) {
	return s.next.CreatePlaceholder(ctx)
}

func (s *SealedStore) Find(ctx context.Context, id string) (*Record, error) {
	rec, err := s.next.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	out := *rec
	if out.AccessToken, err = s.open(rec.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token for %s: %w", id, err)
	}
	if out.RefreshToken, err = s.open(rec.RefreshToken); err != nil {
		return nil, fmt.Errorf("open refresh token for %s: %w", id, err)
	}
	return &out, nil
}

func (s *SealedStore) SaveProviderTokens(ctx context.Context, id, accessToken, refreshToken string, expiresIn int) error {
	if err := validateTokens(accessToken, refreshToken, expiresIn); err != nil {
		return err
	}

	sealedAccess, err := s.sealer.Seal(accessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	sealedRefresh, err := s.sealer.Seal(refreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	return s.next.SaveProviderTokens(ctx, id, sealedPrefix+sealedAccess, sealedPrefix+sealedRefresh, expiresIn)
}

func (s *SealedStore) open(value *string) (*string, error) {
	if value == nil || !strings.HasPrefix(*value, sealedPrefix) {
		return value, nil
	}
	plain, err := s.sealer.Open(strings.TrimPrefix(*value, sealedPrefix))
	if err != nil {
		return nil, err
	}
	return &plain, nil
}
