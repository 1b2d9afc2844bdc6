package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"adaptive-testing-service/internal/domain"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionStore(client, time.Minute, time.Second), mr
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	session := domain.Session{
		ID:       "s1",
		PoolID:   "pool-1",
		Mode:     domain.ModeAdaptive,
		Status:   domain.StatusCreated,
		Ability:  0.25,
		Settings: domain.Settings{MaxItems: 5, PriorSD: 1, AbilityMin: -4, AbilityMax: 4},
	}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("cat:session:s1") {
		t.Fatalf("expected redis key to be set")
	}

	loaded, version, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if version != 1 || loaded.PoolID != "pool-1" || loaded.Ability != 0.25 {
		t.Fatalf("unexpected load: version=%d session=%+v", version, loaded)
	}
}

func TestSessionStoreConditionalPut(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	session := domain.Session{ID: "s1", Status: domain.StatusCreated}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, session); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	session.Status = domain.StatusActive
	if err := store.Update(ctx, session, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Update(ctx, session, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	if _, version, _ := store.Get(ctx, "s1"); version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
}

func TestSessionStoreRefreshesTTLOnUpdate(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	session := domain.Session{ID: "s1", Status: domain.StatusCreated}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(40 * time.Second)
	session.Status = domain.StatusActive
	if err := store.Update(ctx, session, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The update renewed the minute-long TTL, so the original deadline
	// passing must not expire the session.
	mr.FastForward(40 * time.Second)
	if _, _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("expected session alive after refresh, got %v", err)
	}

	mr.FastForward(time.Minute)
	if _, _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected TTL expiry, got %v", err)
	}
}

func TestSessionStoreExpiredUpdateFails(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	session := domain.Session{ID: "s1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if err := store.Update(ctx, session, 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found on expired session, got %v", err)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_ = store.Create(ctx, domain.Session{ID: "s1"})
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("cat:session:s1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
