package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"adaptive-testing-service/internal/domain"
)

// PoolLoader fetches item-pool content from a backing store.
type PoolLoader interface {
	LoadPool(ctx context.Context, poolID string) (domain.Pool, error)
}

// PoolRepository caches item pools with TTL to avoid repeated backing-store
// hits; item parameters are immutable for the life of a session, so a stale
// read window the size of the TTL is acceptable.
type PoolRepository struct {
	loader PoolLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	pool      domain.Pool
	expiresAt time.Time
}

func NewPoolRepository(loader PoolLoader, ttl time.Duration) *PoolRepository {
	return &PoolRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedPool),
	}
}

func (r *PoolRepository) GetPool(ctx context.Context, poolID string) (domain.Pool, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[poolID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.pool, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(poolID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[poolID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.pool, nil
		}
		r.mu.RUnlock()

		pool, err := r.loader.LoadPool(ctx, poolID)
		if err != nil {
			return domain.Pool{}, err
		}

		r.mu.Lock()
		r.cache[poolID] = cachedPool{
			pool:      pool,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return domain.Pool{}, err
	}
	return result.(domain.Pool), nil
}

// StaticPoolLoader is a simple loader backed by an in-memory map (useful for
// tests/demos).
type StaticPoolLoader struct {
	pools map[string]domain.Pool
}

func NewStaticPoolLoader(pools map[string]domain.Pool) *StaticPoolLoader {
	return &StaticPoolLoader{pools: pools}
}

func (l *StaticPoolLoader) LoadPool(_ context.Context, poolID string) (domain.Pool, error) {
	if pool, ok := l.pools[poolID]; ok {
		return pool, nil
	}
	return domain.Pool{}, domain.ErrPoolNotFound
}

func (r *PoolRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations; the top-level source is
	// safe for concurrent singleflight callbacks
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
