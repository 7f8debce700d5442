//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/chatsync/internal/rest"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GetSession returns the session state and identity.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{"state": h.sessions.State().String()}
	if id, ok := h.sessions.Current(); ok {
		resp["user"] = id
	}
	JSON(w, http.StatusOK, resp)
}

// SignIn authenticates with the social API and starts the real-time session.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, "signin")
}

// SignUp registers with the social API and starts the real-time session.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, "signup")
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, op string) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	signIn := h.sessions.SignIn
	if op == "signup" {
		signIn = h.sessions.SignUp
	}
	id, err := signIn(r.Context(), req.Username, req.Password)
	if err != nil {
		var se *rest.StatusError
		if errors.As(err, &se) && se.Status < 500 {
			msg := se.Message
			if msg == "" {
				msg = http.StatusText(se.Status)
			}
			Error(w, se.Status, msg)
			return
		}
		slog.Warn("Authentication failed", "op", op, "error", err)
		Error(w, http.StatusBadGateway, "authentication failed")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"user": id})
}

// SignOut ends the session and tears down real-time state.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(r.Context()); err != nil {
		slog.Warn("Sign out incomplete", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
