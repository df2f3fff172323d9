package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sulavpanthi/xero-oauth/database"
)

// GormStore is the relational Store. Every operation runs in its own
// transaction that commits on success and rolls back on any error.
type GormStore struct {
	db  *database.Database
	now func() time.Time
}

// NewGormStore returns a Store backed by db.
func NewGormStore(db *database.Database, opts ...Option) *GormStore {
	o := buildOptions(opts)
	return &GormStore{db: db, now: o.now}
}

// Migrate creates or updates the user_oauth_tokens table.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, &Record{})
}

func (s *GormStore) CreatePlaceholder(ctx context.Context) (string, error) {
	id := uuid.NewString()
	err := s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&Record{ID: id}).Error
	})
	if err != nil {
		return "", fmt.Errorf("create placeholder: %w", err)
	}
	return id, nil
}

func (s *GormStore) Find(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Take(&rec).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *GormStore) SaveProviderTokens(ctx context.Context, id, accessToken, refreshToken string, expiresIn int) error {
	if err := validateTokens(accessToken, refreshToken, expiresIn); err != nil {
		return err
	}

	now := s.now()
	expiresAt := expiryFrom(now, expiresIn)

	err := s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&Record{}).Where("id = ?", id).Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"updated_at":    now.UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		// Some drivers report zero affected rows for an unchanged row.
		var count int64
		if err := tx.Model(&Record{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("save provider tokens for %s: %w", id, err)
	}
	return nil
}
