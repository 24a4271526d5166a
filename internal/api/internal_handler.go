// Package api exposes the hub's collaborator surface to the CRUD
// service: message fan-out, friend notifications and presence readback.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/websocket"
)

// InternalHandler handles the endpoints the CRUD service calls after it
// persists something the hub should announce.
type InternalHandler struct {
	broadcaster websocket.Broadcaster
	presence    *websocket.PresenceTracker
	logger      *slog.Logger
}

func NewInternalHandler(broadcaster websocket.Broadcaster, presence *websocket.PresenceTracker, logger *slog.Logger) *InternalHandler {
	return &InternalHandler{
		broadcaster: broadcaster,
		presence:    presence,
		logger:      logger,
	}
}

// BroadcastMessage handles POST /internal/messages/broadcast.
// The body is the full message record the CRUD path just persisted.
func (h *InternalHandler) BroadcastMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message body")
		return
	}
	if msg.ID == uuid.Nil || msg.ConversationID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "message id and conversation id are required")
		return
	}

	if err := h.broadcaster.BroadcastMessageNew(r.Context(), &msg); err != nil {
		h.logger.Error("failed to broadcast message", "error", err, "message_id", msg.ID)
		writeError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// FriendRequest handles POST /internal/friends/request
func (h *InternalHandler) FriendRequest(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ToUserID  uuid.UUID          `json:"to_user_id"`
		From      domain.UserSummary `json:"from"`
		RequestID uuid.UUID          `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.ToUserID == uuid.Nil || input.From.ID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "target and sender are required")
		return
	}

	if err := h.broadcaster.NotifyFriendRequest(r.Context(), input.ToUserID, input.From, input.RequestID); err != nil {
		h.logger.Error("failed to notify friend request", "error", err, "to_user_id", input.ToUserID)
		writeError(w, http.StatusInternalServerError, "notify failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// FriendAccepted handles POST /internal/friends/accepted
func (h *InternalHandler) FriendAccepted(w http.ResponseWriter, r *http.Request) {
	var input struct {
		UserID         uuid.UUID          `json:"user_id"`
		NewFriend      domain.UserSummary `json:"new_friend"`
		ConversationID uuid.UUID          `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.UserID == uuid.Nil || input.NewFriend.ID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "target and friend are required")
		return
	}

	if err := h.broadcaster.NotifyFriendAccepted(r.Context(), input.UserID, input.NewFriend, input.ConversationID); err != nil {
		h.logger.Error("failed to notify friend accepted", "error", err, "user_id", input.UserID)
		writeError(w, http.StatusInternalServerError, "notify failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetPresence handles GET /internal/presence/{userID}
func (h *InternalHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	p, err := h.presence.PresenceOf(r.Context(), userID)
	if err != nil {
		if err == domain.ErrUserNotFound {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to read presence", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "presence lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
