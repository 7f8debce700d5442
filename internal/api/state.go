//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/chatsync/internal/domain"
	"github.com/go-chi/chi/v5"
)

// GetState returns a snapshot of presence, unread counts, friend requests,
// conversations and notices.
func (h *Handler) GetState(w http.ResponseWriter, _ *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, s.View())
}

// Reconnect reopens a dropped channel connection.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	if err := s.Reconnect(r.Context()); err != nil {
		upstreamError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"connection": s.View().Connection})
}

// DismissNotice removes a notice.
func (h *Handler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	if !s.DismissNotice(chi.URLParam(r, "id")) {
		Error(w, http.StatusNotFound, "notice not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinRoom joins a conversation room and clears its unread count.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.JoinRoom(r.Context(), id); err != nil {
		upstreamError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"joinedRoom": id})
}

// LeaveRoom leaves the joined room.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	if err := s.LeaveRoom(r.Context()); err != nil {
		upstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshConversations reloads the conversation list snapshot.
func (h *Handler) RefreshConversations(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	if err := s.RefreshConversations(r.Context()); err != nil {
		upstreamError(w, err)
		return
	}
	JSON(w, http.StatusOK, s.View().Conversations)
}

// OpenConversation creates or fetches the conversation with a peer and joins it.
func (h *Handler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	conv, err := s.OpenConversation(r.Context(), chi.URLParam(r, "peerId"))
	if err != nil {
		upstreamError(w, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// AcknowledgeUnread clears a conversation's unread count without joining it.
func (h *Handler) AcknowledgeUnread(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	s.AcknowledgeUnread(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// VisitFriendRequests acknowledges and reloads the pending friend requests.
func (h *Handler) VisitFriendRequests(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	reqs, err := s.VisitFriendRequests(r.Context())
	if err != nil {
		upstreamError(w, err)
		return
	}
	JSON(w, http.StatusOK, reqs)
}

// RespondFriendRequest accepts or declines a friend request.
func (h *Handler) RespondFriendRequest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	var body struct {
		Response domain.FriendRequestStatus `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Response != domain.FriendRequestAccepted && body.Response != domain.FriendRequestDeclined {
		Error(w, http.StatusBadRequest, "response must be accepted or declined")
		return
	}
	if err := s.RespondToFriendRequest(r.Context(), chi.URLParam(r, "id"), body.Response); err != nil {
		upstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendFriendRequest sends a friend request to a user.
func (h *Handler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	if err := s.SendFriendRequest(r.Context(), chi.URLParam(r, "userId")); err != nil {
		upstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Friends lists friends with presence.
func (h *Handler) Friends(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	friends, err := s.Friends(r.Context())
	if err != nil {
		upstreamError(w, err)
		return
	}
	JSON(w, http.StatusOK, friends)
}

// SearchUsers searches users by name.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w)
	if !ok {
		return
	}
	users, err := s.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		upstreamError(w, err)
		return
	}
	if users == nil {
		users = []domain.Identity{}
	}
	JSON(w, http.StatusOK, users)
}
