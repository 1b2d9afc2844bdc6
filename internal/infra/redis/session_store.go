package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adaptive-testing-service/internal/domain"
)

// SessionStore persists serialized sessions in Redis, one key per session.
// Conditional updates use the WATCH/MULTI optimistic-lock pattern against a
// version embedded in the stored envelope: two concurrent transitions from
// the same loaded version cannot both land, the loser gets ErrConflict.
// Every operation runs under opTimeout; expiry is Redis TTL, refreshed on
// each successful update, so inactive sessions disappear without any sweep.
type SessionStore struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

// envelope is the stored form: the version rides next to the state so a
// single GET returns both.
type envelope struct {
	Version int64          `json:"version"`
	Session domain.Session `json:"session"`
}

func NewSessionStore(client *redis.Client, ttl, opTimeout time.Duration) *SessionStore {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &SessionStore{client: client, ttl: ttl, opTimeout: opTimeout}
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(envelope{Version: 1, Session: session})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, s.key(session.ID), data, s.ttl).Result()
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return domain.ErrConflict
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, 0, domain.ErrSessionNotFound
		}
		return domain.Session{}, 0, storeErr(err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Session{}, 0, fmt.Errorf("decode session: %w", err)
	}
	return env.Session, env.Version, nil
}

func (s *SessionStore) Update(ctx context.Context, session domain.Session, expectedVersion int64) error {
	data, err := json.Marshal(envelope{Version: expectedVersion + 1, Session: session})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	key := s.key(session.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrSessionNotFound
			}
			return err
		}
		var current envelope
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if current.Version != expectedVersion {
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSessionNotFound):
		return err
	case errors.Is(err, redis.TxFailedErr):
		// Another writer touched the key between GET and EXEC.
		return domain.ErrConflict
	default:
		return storeErr(err)
	}
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *SessionStore) key(id string) string {
	return "cat:session:" + id
}

// storeErr folds timeouts and connectivity failures into the store-unavailable
// taxonomy while keeping the underlying cause in the chain.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
