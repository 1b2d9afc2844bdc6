package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"adaptive-testing-service/internal/domain"
)

// PoolLoader fetches item-pool content from a backing store (e.g. Postgres).
type PoolLoader interface {
	LoadPool(ctx context.Context, poolID string) (domain.Pool, error)
}

// PoolRepository caches serialized item pools in Redis and falls back to a
// loader on cache miss. Pools are stored as: SET cat:pool:{poolID} {json}.
type PoolRepository struct {
	client *redis.Client
	loader PoolLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewPoolRepository(client *redis.Client, loader PoolLoader, ttl time.Duration) *PoolRepository {
	return &PoolRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *PoolRepository) GetPool(ctx context.Context, poolID string) (domain.Pool, error) {
	key := r.key(poolID)

	if pool, ok := r.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := r.sf.Do(poolID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := r.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := r.loader.LoadPool(ctx, poolID)
		if err != nil {
			return domain.Pool{}, err
		}

		data, err := json.Marshal(pool)
		if err != nil {
			return domain.Pool{}, err
		}
		// Best-effort cache fill; a failed write just means the next
		// request loads again.
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()

		return pool, nil
	})
	if err != nil {
		return domain.Pool{}, err
	}
	return result.(domain.Pool), nil
}

func (r *PoolRepository) cached(ctx context.Context, key string) (domain.Pool, bool) {
	// Any cache failure (miss or otherwise) falls through to the loader.
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Pool{}, false
	}
	var pool domain.Pool
	if err := json.Unmarshal(raw, &pool); err != nil {
		return domain.Pool{}, false
	}
	return pool, true
}

func (r *PoolRepository) key(poolID string) string {
	return "cat:pool:" + poolID
}

func (r *PoolRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// top-level source, safe for concurrent singleflight callbacks
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
