package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"adaptive-testing-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore with the
// same version and expiry contract as the Redis store. State is held as the
// serialized form so callers never share slices with the store.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	data      []byte
	version   int64
	expiresAt time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[string]*entry),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[session.ID]; ok && s.live(e) {
		return domain.ErrConflict
	}
	s.sessions[session.ID] = &entry{data: data, version: 1, expiresAt: s.expiry()}
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.Session, int64, error) {
	// Copy the entry fields before unlocking: Update rewrites them in place
	// under the same mutex.
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok && !s.live(e) {
		delete(s.sessions, id)
		ok = false
	}
	var (
		data    []byte
		version int64
	)
	if ok {
		data, version = e.data, e.version
	}
	s.mu.Unlock()
	if !ok {
		return domain.Session{}, 0, domain.ErrSessionNotFound
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.Session{}, 0, err
	}
	return session, version, nil
}

func (s *SessionStore) Update(_ context.Context, session domain.Session, expectedVersion int64) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[session.ID]
	if !ok || !s.live(e) {
		return domain.ErrSessionNotFound
	}
	if e.version != expectedVersion {
		return domain.ErrConflict
	}
	e.data = data
	e.version++
	e.expiresAt = s.expiry()
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) live(e *entry) bool {
	return e.expiresAt.IsZero() || e.expiresAt.After(s.clock())
}

func (s *SessionStore) expiry() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.clock().Add(s.ttl)
}
