package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"adaptive-testing-service/internal/app"
	"adaptive-testing-service/internal/domain"
)

// WSHandler drives a test session over one websocket connection: the client
// asks for items and submits responses as messages instead of separate HTTP
// round trips. Every message still runs a full load-transition-persist cycle
// against the store; the connection holds no session state.
type WSHandler struct {
	engine   *app.Engine
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		engine: engine,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and serves next/submit/end messages until
// the client disconnects or the session reaches a terminal state.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case "next":
			next, err := h.engine.NextItem(r.Context(), sessionID)
			if err != nil {
				h.sendError(conn, err)
				continue
			}
			h.sendNext(conn, next)
		case "submit":
			var payload submitRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}})
				continue
			}
			next, err := h.engine.Submit(r.Context(), sessionID, app.SubmitParams{
				ItemID:  payload.ItemID,
				Answer:  payload.Answer,
				Correct: payload.Correct,
			})
			if err != nil {
				h.sendError(conn, err)
				continue
			}
			h.sendNext(conn, next)
		case "end":
			session, err := h.engine.End(r.Context(), sessionID)
			if err != nil {
				h.sendError(conn, err)
				continue
			}
			_ = conn.WriteJSON(outboundMessage[domain.Session]{Type: "finished", Payload: session})
		default:
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}

func (h *WSHandler) sendNext(conn *websocket.Conn, next app.NextItem) {
	resp := toNextResponse(next)
	kind := "item"
	if resp.Finished {
		kind = "finished"
	}
	_ = conn.WriteJSON(outboundMessage[nextResponse]{Type: kind, Payload: resp})
}

func (h *WSHandler) sendError(conn *websocket.Conn, err error) {
	_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
}
