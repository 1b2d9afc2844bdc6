package domain

import (
	"encoding/json"
	"time"
)

// Mode selects how a session picks its items.
type Mode string

const (
	// ModeAdaptive picks the most informative remaining item at the
	// current ability estimate.
	ModeAdaptive Mode = "adaptive"
	// ModeClassical administers the pool in its fixed order.
	ModeClassical Mode = "classical"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

// Item is a calibrated test item under the three-parameter logistic model.
// Content is opaque to the engine; only the parameters drive scoring.
type Item struct {
	ID             string          `json:"id"`
	Content        json.RawMessage `json:"content,omitempty"`
	Discrimination float64         `json:"discrimination"`
	Difficulty     float64         `json:"difficulty"`
	Guessing       float64         `json:"guessing"`
}

// Pool is an ordered collection of items a session draws from. The slice
// order is the administration order in classical mode.
type Pool struct {
	ID    string `json:"id"`
	Items []Item `json:"items"`
}

// Item returns the pool item with the given id.
func (p Pool) Item(id string) (Item, bool) {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return p.Items[i], true
		}
	}
	return Item{}, false
}

// Response records one answered item. Responses are append-only.
type Response struct {
	ItemID  string          `json:"itemId"`
	Answer  json.RawMessage `json:"answer,omitempty"`
	Correct bool            `json:"correct"`
	At      time.Time       `json:"at"`
}

// Settings is the per-session snapshot of the engine configuration, taken at
// session start so mid-flight config changes cannot skew a live test.
type Settings struct {
	MaxItems    int     `json:"maxItems"`
	MinItems    int     `json:"minItems"`
	SEThreshold float64 `json:"seThreshold"`
	Prior       float64 `json:"prior"`
	PriorSD     float64 `json:"priorSD"`
	AbilityMin  float64 `json:"abilityMin"`
	AbilityMax  float64 `json:"abilityMax"`
}

// Session is the full persisted state of one test administration. It is the
// unit of ownership for its responses and administered-item order; the store
// expires all of it together.
type Session struct {
	ID              string     `json:"id"`
	PoolID          string     `json:"poolId"`
	Mode            Mode       `json:"mode"`
	Settings        Settings   `json:"settings"`
	AdministeredIDs []string   `json:"administeredIds"`
	Responses       []Response `json:"responses"`
	PendingItemID   string     `json:"pendingItemId,omitempty"`
	Ability         float64    `json:"ability"`
	StandardError   float64    `json:"standardError"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastActivityAt  time.Time  `json:"lastActivityAt"`
}

// Administered reports whether the item was already administered or is the
// current pending item.
func (s Session) Administered(itemID string) bool {
	if s.PendingItemID == itemID {
		return true
	}
	for _, id := range s.AdministeredIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Result is the reported outcome of a session.
type Result struct {
	SessionID         string     `json:"sessionId"`
	Finished          bool       `json:"finished"`
	Ability           float64    `json:"ability"`
	StandardError     float64    `json:"standardError"`
	MaxItems          int        `json:"maxItems"`
	AdministeredItems []Item     `json:"administeredItems"`
	Responses         []Response `json:"responses"`
}
