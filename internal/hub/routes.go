package hub

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/chatsync/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the WebSocket endpoint and the injection API:
//
//	GET  /ws
//	GET  /online
//	POST /messages
//	POST /friend-requests/{userId}
func (h *Hub) Routes(r chi.Router) {
	r.Handle("/ws", h)
	r.Get("/online", h.handleOnline)
	r.Post("/messages", h.handleMessage)
	r.Post("/friend-requests/{userId}", h.handleFriendRequest)
}

func (h *Hub) handleOnline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"online": h.Online()})
}

func (h *Hub) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message"})
		return
	}
	delivered, err := h.DeliverMessage(r.Context(), msg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, delivered)
}

func (h *Hub) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.FriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid friend request"})
		return
	}
	delivered, err := h.DeliverFriendRequest(r.Context(), chi.URLParam(r, "userId"), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, delivered)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}
