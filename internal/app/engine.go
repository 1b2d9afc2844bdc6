package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adaptive-testing-service/internal/domain"
	"adaptive-testing-service/internal/irt"
)

// SessionStore persists session state between requests. It is the sole
// source of truth: the engine keeps no session state in process memory.
// Update must be conditional on the version returned by Get so that two
// concurrent transitions from the same base state cannot both land; the
// loser gets domain.ErrConflict.
type SessionStore interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, int64, error)
	Update(ctx context.Context, session domain.Session, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// PoolRepository loads item pools (from cache/backing store).
type PoolRepository interface {
	GetPool(ctx context.Context, poolID string) (domain.Pool, error)
}

// Engine contains the adaptive-testing use cases. Every operation loads
// session state, applies at most one state-machine transition, and persists
// the result; nothing survives in memory across calls.
type Engine struct {
	sessions SessionStore
	pools    PoolRepository
	defaults domain.Settings
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewEngine(sessions SessionStore, pools PoolRepository, defaults domain.Settings, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		sessions: sessions,
		pools:    pools,
		defaults: defaults,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps and ids.
func (e *Engine) WithClock(now func() time.Time, newID func() string) *Engine {
	e.now = now
	e.newID = newID
	return e
}

// StartParams configures a new session. A nil Settings uses the engine
// defaults; either way the effective settings are snapshotted into the
// session so later config changes cannot affect it.
type StartParams struct {
	PoolID   string
	Mode     domain.Mode
	Settings *domain.Settings
}

// NextItem is the outcome of an item request or a response submission.
// Item is nil once the session has finished.
type NextItem struct {
	Item    *domain.Item
	Session domain.Session
}

// SubmitParams carries one response for the current pending item. Correct is
// derived by the caller against the item's answer key; the engine records
// the raw answer payload but never interprets it.
type SubmitParams struct {
	ItemID  string
	Answer  json.RawMessage
	Correct bool
}

// Start creates a session in the created state. The first NextItem call
// performs the created→active transition and selects the first item.
func (e *Engine) Start(ctx context.Context, params StartParams) (domain.Session, error) {
	pool, err := e.pools.GetPool(ctx, params.PoolID)
	if err != nil {
		return domain.Session{}, err
	}

	mode := params.Mode
	if mode == "" {
		mode = domain.ModeAdaptive
	}
	settings := e.settingsFor(mode, len(pool.Items), params.Settings)

	now := e.now()
	session := domain.Session{
		ID:             e.newID(),
		PoolID:         params.PoolID,
		Mode:           mode,
		Settings:       settings,
		Ability:        settings.Prior,
		StandardError:  settings.AbilityMax - settings.AbilityMin,
		Status:         domain.StatusCreated,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// NextItem returns the item the session should administer next. On a created
// session this selects the first item and activates the session. On an
// active session it re-returns the pending item without a transition, so a
// client can safely re-fetch after a dropped response.
func (e *Engine) NextItem(ctx context.Context, sessionID string) (NextItem, error) {
	session, version, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return NextItem{}, err
	}
	if session.Status.Terminal() {
		return NextItem{}, domain.ErrInvalidState
	}

	pool, err := e.pools.GetPool(ctx, session.PoolID)
	if err != nil {
		return NextItem{}, err
	}

	if session.Status == domain.StatusActive && session.PendingItemID != "" {
		if item, ok := pool.Item(session.PendingItemID); ok {
			return NextItem{Item: &item, Session: session}, nil
		}
		// The pending item vanished from the pool underneath us; drop it
		// and fall through to a fresh selection.
		e.log.Warn("pending item missing from pool, re-selecting",
			zap.String("session", session.ID),
			zap.String("item", session.PendingItemID))
		session.PendingItemID = ""
	}

	session.Status = domain.StatusActive
	session.LastActivityAt = e.now()

	next, err := selectNext(pool, session, session.Ability)
	if err == domain.ErrExhausted {
		session.Status = domain.StatusFinished
		session.PendingItemID = ""
		if err := e.sessions.Update(ctx, session, version); err != nil {
			return NextItem{}, err
		}
		return NextItem{Session: session}, nil
	}
	if err != nil {
		return NextItem{}, err
	}

	session.PendingItemID = next.ID
	if err := e.sessions.Update(ctx, session, version); err != nil {
		return NextItem{}, err
	}
	return NextItem{Item: &next, Session: session}, nil
}

// Submit records a response for the pending item, re-estimates ability,
// evaluates the stop rules, and either selects the next item or finishes the
// session. The whole transition persists atomically; a lost version race
// returns domain.ErrConflict with nothing written.
func (e *Engine) Submit(ctx context.Context, sessionID string, params SubmitParams) (NextItem, error) {
	session, version, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return NextItem{}, err
	}
	if session.Status.Terminal() {
		return NextItem{}, domain.ErrInvalidState
	}
	if session.PendingItemID == "" || session.PendingItemID != params.ItemID {
		return NextItem{}, domain.ErrMismatch
	}

	pool, err := e.pools.GetPool(ctx, session.PoolID)
	if err != nil {
		return NextItem{}, err
	}

	now := e.now()
	session.Responses = append(session.Responses, domain.Response{
		ItemID:  params.ItemID,
		Answer:  params.Answer,
		Correct: params.Correct,
		At:      now,
	})
	session.AdministeredIDs = append(session.AdministeredIDs, params.ItemID)
	session.PendingItemID = ""
	session.LastActivityAt = now

	e.rescore(&session, pool)

	var next *domain.Item
	if shouldStop(session) {
		session.Status = domain.StatusFinished
	} else {
		item, err := selectNext(pool, session, session.Ability)
		if err == domain.ErrExhausted {
			session.Status = domain.StatusFinished
		} else if err != nil {
			return NextItem{}, err
		} else {
			session.PendingItemID = item.ID
			next = &item
		}
	}

	if err := e.sessions.Update(ctx, session, version); err != nil {
		return NextItem{}, err
	}
	return NextItem{Item: next, Session: session}, nil
}

// End finishes a session explicitly, regardless of the stop rules.
func (e *Engine) End(ctx context.Context, sessionID string) (domain.Session, error) {
	return e.terminate(ctx, sessionID, domain.StatusFinished)
}

// Abandon cancels a session. Inactivity abandonment needs no call here: the
// store's TTL expires the state and later reads see ErrSessionNotFound.
func (e *Engine) Abandon(ctx context.Context, sessionID string) (domain.Session, error) {
	return e.terminate(ctx, sessionID, domain.StatusAbandoned)
}

func (e *Engine) terminate(ctx context.Context, sessionID string, status domain.Status) (domain.Session, error) {
	session, version, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status.Terminal() {
		return domain.Session{}, domain.ErrInvalidState
	}
	session.Status = status
	session.PendingItemID = ""
	session.LastActivityAt = e.now()
	if err := e.sessions.Update(ctx, session, version); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Delete removes a session's stored state entirely.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Result reports the current outcome of a session. Classical sessions only
// report once finished, since a partial fixed-length test has no meaningful
// score.
func (e *Engine) Result(ctx context.Context, sessionID string) (domain.Result, error) {
	session, _, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	if session.Mode == domain.ModeClassical && session.Status != domain.StatusFinished {
		return domain.Result{}, domain.ErrInvalidState
	}

	pool, err := e.pools.GetPool(ctx, session.PoolID)
	if err != nil {
		return domain.Result{}, err
	}

	administered := make([]domain.Item, 0, len(session.AdministeredIDs))
	for _, id := range session.AdministeredIDs {
		if item, ok := pool.Item(id); ok {
			administered = append(administered, item)
		}
	}

	return domain.Result{
		SessionID:         session.ID,
		Finished:          session.Status == domain.StatusFinished,
		Ability:           session.Ability,
		StandardError:     session.StandardError,
		MaxItems:          session.Settings.MaxItems,
		AdministeredItems: administered,
		Responses:         session.Responses,
	}, nil
}

// rescore updates the session's ability and standard error from its full
// response history. Administered ids that no longer resolve in the pool are
// skipped rather than failing the session.
func (e *Engine) rescore(session *domain.Session, pool domain.Pool) {
	items := make([]domain.Item, 0, len(session.Responses))
	correct := make([]bool, 0, len(session.Responses))
	for _, resp := range session.Responses {
		item, ok := pool.Item(resp.ItemID)
		if !ok {
			e.log.Warn("administered item missing from pool, skipping in estimation",
				zap.String("session", session.ID),
				zap.String("item", resp.ItemID))
			continue
		}
		items = append(items, item)
		correct = append(correct, resp.Correct)
	}

	if session.Mode == domain.ModeClassical {
		session.Ability = classicalScore(items, correct)
		session.StandardError = 0
		return
	}

	estimator := irt.NewEstimator(session.Settings)
	session.Ability, session.StandardError = estimator.Estimate(items, correct)
}

// classicalScore is the difficulty-weighted fraction of correct answers.
// When the weight sum is not positive (negative or zero difficulties) it
// falls back to the plain fraction correct.
func classicalScore(items []domain.Item, correct []bool) float64 {
	if len(items) == 0 {
		return 0
	}
	var weightSum, weighted, hits float64
	for i := range items {
		weightSum += items[i].Difficulty
		if correct[i] {
			weighted += items[i].Difficulty
			hits++
		}
	}
	if weightSum > 0 {
		return weighted / weightSum
	}
	return hits / float64(len(items))
}

// settingsFor merges per-session overrides onto the engine defaults and
// normalizes them for the mode. Classical sessions administer the whole pool
// in order and never stop early on precision.
func (e *Engine) settingsFor(mode domain.Mode, poolSize int, override *domain.Settings) domain.Settings {
	settings := e.defaults
	if override != nil {
		settings = *override
	}
	if settings.MaxItems <= 0 {
		settings.MaxItems = e.defaults.MaxItems
	}
	if settings.MinItems < 0 {
		settings.MinItems = 0
	}
	if settings.PriorSD == 0 {
		settings.PriorSD = e.defaults.PriorSD
	}
	if settings.AbilityMin == 0 && settings.AbilityMax == 0 {
		settings.AbilityMin = e.defaults.AbilityMin
		settings.AbilityMax = e.defaults.AbilityMax
	}
	if mode == domain.ModeClassical {
		settings.MaxItems = poolSize
		settings.MinItems = 0
		settings.SEThreshold = 0
	}
	return settings
}
