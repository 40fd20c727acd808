package collab

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/lexcollab/collab-server/internal/auth"
	"github.com/lexcollab/collab-server/internal/typeid"
)

type IdentityResolver interface {
	Resolve(r *http.Request) (auth.Identity, error)
}

type Handler struct {
	hub            *Hub
	identity       IdentityResolver
	originPatterns []string
	sendBuffer     int
}

func NewHandler(hub *Hub, identity IdentityResolver, originPatterns []string, sendBuffer int) *Handler {
	return &Handler{
		hub:            hub,
		identity:       identity,
		originPatterns: originPatterns,
		sendBuffer:     sendBuffer,
	}
}

// ServeWS upgrades the request and runs the client until the link closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity.Resolve(r)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		slog.Error("resolve identity", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, typeid.NewConnectionID(), identity.UserID, identity.DisplayName, h.sendBuffer)

	ctx := r.Context()
	if err := h.hub.Register(ctx, client); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

func (h *Handler) DocumentUsers(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["documentId"]

	users, err := h.hub.UsersInDocument(r.Context(), documentID)
	if err != nil {
		handleHubError(w, err)
		return
	}
	slog.Debug("document users queried", "document", documentID, "caller", auth.UserIDFromContext(r.Context()))

	writeJSON(w, http.StatusOK, DocumentUsersPayload{
		DocumentID: documentID,
		Users:      users,
	})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.hub.Sessions(r.Context())
	if err != nil {
		handleHubError(w, err)
		return
	}
	slog.Debug("sessions listed", "count", len(sessions), "caller", auth.UserIDFromContext(r.Context()))

	writeJSON(w, http.StatusOK, sessions)
}

func handleHubError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrHubStopped) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
		return
	}
	slog.Warn("hub query failed", "error", err)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
