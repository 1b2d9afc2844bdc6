package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"adaptive-testing-service/internal/domain"
)

func TestPoolRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		PoolLoader: NewStaticPoolLoader(map[string]domain.Pool{
			"pool-1": samplePool(),
		}),
	}
	repo := NewPoolRepository(loader, time.Minute)

	if _, err := repo.GetPool(context.Background(), "pool-1"); err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second call should hit cache, loader not incremented.
	_, _ = repo.GetPool(context.Background(), "pool-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestPoolRepositoryUnknownPool(t *testing.T) {
	repo := NewPoolRepository(NewStaticPoolLoader(nil), time.Minute)
	if _, err := repo.GetPool(context.Background(), "missing"); !errors.Is(err, domain.ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

type countingLoader struct {
	PoolLoader
	calls int
}

func (l *countingLoader) LoadPool(ctx context.Context, poolID string) (domain.Pool, error) {
	l.calls++
	return l.PoolLoader.LoadPool(ctx, poolID)
}

func samplePool() domain.Pool {
	return domain.Pool{
		ID: "pool-1",
		Items: []domain.Item{
			{ID: "q1", Difficulty: -1, Discrimination: 1},
			{ID: "q2", Difficulty: 0, Discrimination: 1.2},
			{ID: "q3", Difficulty: 1, Discrimination: 0.8},
		},
	}
}
