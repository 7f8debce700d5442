// Package api provides the local HTTP API a UI process drives the session through.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/identity"
	"github.com/ashureev/chatsync/internal/realtime"
	"github.com/ashureev/chatsync/internal/rest"
	"github.com/ashureev/chatsync/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sessions is the session provider as seen by the API.
type Sessions interface {
	State() domain.SessionState
	Current() (domain.Identity, bool)
	SignIn(ctx context.Context, username, password string) (domain.Identity, error)
	SignUp(ctx context.Context, username, password string) (domain.Identity, error)
	SignOut(ctx context.Context) error
}

// Handler serves the local API.
type Handler struct {
	sessions Sessions
	sync     *realtime.Sync
	repo     store.Repository
	gatherer prometheus.Gatherer
	timeout  time.Duration
}

// NewHandler creates a handler. repo and gatherer may be nil.
func NewHandler(sessions Sessions, sync *realtime.Sync, repo store.Repository, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		sessions: sessions,
		sync:     sync,
		repo:     repo,
		gatherer: gatherer,
		timeout:  5 * time.Second,
	}
}

// RegisterRoutes registers every route of the local API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/session/signin", h.SignIn)
		r.Post("/session/signup", h.SignUp)
		r.Post("/session/signout", h.SignOut)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireSession(h.sessions))

			r.Get("/state", h.GetState)
			r.Post("/reconnect", h.Reconnect)
			r.Delete("/notices/{id}", h.DismissNotice)

			r.Post("/rooms/{id}/join", h.JoinRoom)
			r.Post("/rooms/leave", h.LeaveRoom)

			r.Post("/conversations/refresh", h.RefreshConversations)
			r.Post("/conversations/with/{peerId}", h.OpenConversation)
			r.Post("/conversations/{id}/ack", h.AcknowledgeUnread)

			r.Get("/friend-requests", h.VisitFriendRequests)
			r.Put("/friend-requests/{id}", h.RespondFriendRequest)
			r.Post("/friend-requests/to/{userId}", h.SendFriendRequest)

			r.Get("/friends", h.Friends)
			r.Get("/users/search", h.SearchUsers)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// upstreamError maps an operation error to a status code.
func upstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rest.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, realtime.ErrSessionEnded), errors.Is(err, identity.ErrNoSession):
		Error(w, http.StatusConflict, "session ended")
	case errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusGatewayTimeout, "upstream timeout")
	default:
		slog.Warn("Upstream request failed", "error", err)
		Error(w, http.StatusBadGateway, err.Error())
	}
}

// Health returns the health status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	checks["channel"] = "absent"
	if s := h.sync.Session(); s != nil {
		checks["channel"] = s.View().Connection
	}

	JSON(w, statusCode, status)
}

// session returns the live real-time session or writes an error.
func (h *Handler) session(w http.ResponseWriter) (*realtime.Session, bool) {
	s := h.sync.Session()
	if s == nil || !s.Live() {
		Error(w, http.StatusConflict, "real-time session not ready")
		return nil, false
	}
	return s, true
}
