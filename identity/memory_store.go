package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in a map. It backs tests and single-process runs
// without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{records: make(map[string]Record), now: o.now}
}

func (s *MemoryStore) CreatePlaceholder(_ context.Context) (string, error) {
	now := s.now().UTC()
	id := uuid.NewString()

	s.mu.Lock()
	s.records[id] = Record{ID: id, CreatedAt: now, UpdatedAt: now}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Find(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) SaveProviderTokens(_ context.Context, id, accessToken, refreshToken string, expiresIn int) error {
	if err := validateTokens(accessToken, refreshToken, expiresIn); err != nil {
		return err
	}

	now := s.now()
	expiresAt := expiryFrom(now, expiresIn)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.AccessToken = &accessToken
	rec.RefreshToken = &refreshToken
	rec.ExpiresAt = &expiresAt
	rec.UpdatedAt = now.UTC()
	s.records[id] = rec
	return nil
}

// Put stores rec as-is. Tests use it to seed records in a given state.
func (s *MemoryStore) Put(rec Record) {
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
