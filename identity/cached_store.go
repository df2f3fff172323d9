package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/cache"
)

const cacheKeyPrefix = "identity:"

// CachedStore is a read-through cache in front of another Store. Only records
// whose provider access token is still valid are cached, for ttl or until the
// token expires, whichever comes first. Expired and unauthorized records are
// always read from the wrapped store, so a refresh never starts from a cached
// refresh token. Saves evict the record. Cache failures are logged and never
// fail the call.
type CachedStore struct {
	next  Store
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time

	// saves counts SaveProviderTokens calls. A Find that read the wrapped
	// store before a save landed must not leave its copy in the cache.
	saves atomic.Uint64
}

func NewCachedStore(next Store, c cache.Cache, ttl time.Duration, log *zap.Logger, opts ...Option) *CachedStore {
	if log == nil {
		log = zap.NewNop()
	}
	o := buildOptions(opts)
	return &CachedStore{next: next, cache: c, ttl: ttl, log: log, now: o.now}
}

// CreatePlaceholder is not cached; the record changes again at callback.
func (s *CachedStore) CreatePlaceholder(ctx context.Context) (string, error) {
	return s.next.CreatePlaceholder(ctx)
}

func (s *CachedStore) Find(ctx context.Context, id string) (*Record, error) {
	key := cacheKeyPrefix + id

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn("discarding undecodable cached record", zap.String("id", id))
			break
		}
		if rec.State(s.now()) == StateValid {
			return &rec, nil
		}
	case !errors.Is(err, cache.ErrKeyNotFound):
		s.log.Warn("identity cache read failed", zap.String("id", id), zap.Error(err))
	}

	gen := s.saves.Load()
	rec, err := s.next.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, rec, gen)
	return rec, nil
}

// fill caches rec unless it is not valid or a save happened since gen was
// taken. The second check runs after the write because the save's eviction
// may have landed between the first check and Set.
func (s *CachedStore) fill(ctx context.Context, key string, rec *Record, gen uint64) {
	now := s.now()
	if rec.State(now) != StateValid || s.saves.Load() != gen {
		return
	}
	ttl := rec.ExpiresAt.Sub(now)
	if s.ttl < ttl {
		ttl = s.ttl
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.log.Warn("identity cache write failed", zap.String("id", rec.ID), zap.Error(err))
		return
	}
	if s.saves.Load() != gen {
		s.evict(ctx, key, rec.ID)
	}
}

func (s *CachedStore) evict(ctx context.Context, key, id string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("identity cache eviction failed", zap.String("id", id), zap.Error(err))
	}
}

func (s *CachedStore) SaveProviderTokens(ctx context.Context, id, accessToken, refreshToken string, expiresIn int) error {
	if err := s.next.SaveProviderTokens(ctx, id, accessToken, refreshToken, expiresIn); err != nil {
		return err
	}
	s.saves.Add(1)
	s.evict(ctx, cacheKeyPrefix+id, id)
	return nil
}
