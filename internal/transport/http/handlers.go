package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"adaptive-testing-service/internal/app"
	"adaptive-testing-service/internal/domain"
)

// Handler exposes the engine operations over JSON. Each route maps 1:1 to
// one state-machine transition; payload validation beyond shape belongs to
// the callers of this service.
type Handler struct {
	engine *app.Engine
	log    *zap.Logger
}

func NewHandler(engine *app.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{engine: engine, log: log}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.start)
	mux.HandleFunc("GET /sessions/{id}/next", h.next)
	mux.HandleFunc("POST /sessions/{id}/responses", h.submit)
	mux.HandleFunc("POST /sessions/{id}/end", h.end)
	mux.HandleFunc("GET /sessions/{id}/result", h.result)
	mux.HandleFunc("DELETE /sessions/{id}", h.delete)
}

type startRequest struct {
	PoolID   string           `json:"poolId"`
	Mode     string           `json:"mode"`
	Settings *domain.Settings `json:"settings,omitempty"`
}

// itemView is what a test taker may see: the calibration parameters stay
// server-side.
type itemView struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content,omitempty"`
}

type nextResponse struct {
	SessionID     string    `json:"sessionId"`
	Item          *itemView `json:"item,omitempty"`
	Finished      bool      `json:"finished"`
	Ability       float64   `json:"ability"`
	StandardError float64   `json:"standardError"`
}

type submitRequest struct {
	ItemID  string          `json:"itemId"`
	Answer  json.RawMessage `json:"answer,omitempty"`
	Correct bool            `json:"correct"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PoolID == "" {
		http.Error(w, "invalid start payload", http.StatusBadRequest)
		return
	}
	session, err := h.engine.Start(r.Context(), app.StartParams{
		PoolID:   req.PoolID,
		Mode:     domain.Mode(req.Mode),
		Settings: req.Settings,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	next, err := h.engine.NextItem(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toNextResponse(next))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		http.Error(w, "invalid response payload", http.StatusBadRequest)
		return
	}
	next, err := h.engine.Submit(r.Context(), r.PathValue("id"), app.SubmitParams{
		ItemID:  req.ItemID,
		Answer:  req.Answer,
		Correct: req.Correct,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toNextResponse(next))
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.End(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toNextResponse(next app.NextItem) nextResponse {
	resp := nextResponse{
		SessionID:     next.Session.ID,
		Finished:      next.Session.Status == domain.StatusFinished,
		Ability:       next.Session.Ability,
		StandardError: next.Session.StandardError,
	}
	if next.Item != nil {
		resp.Item = &itemView{ID: next.Item.ID, Content: next.Item.Content}
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("write response", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPoolNotFound),
		errors.Is(err, domain.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}
