//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/chatsync/internal/channel"
	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/metrics"
	"github.com/ashureev/chatsync/internal/middleware"
	"github.com/ashureev/chatsync/internal/realtime"
	"github.com/ashureev/chatsync/internal/rest"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type fakeSessions struct {
	mu      sync.Mutex
	current *domain.Identity
	signErr error
	onSign  func(domain.Identity)
}

func (f *fakeSessions) State() domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		return domain.SessionActive
	}
	return domain.SessionNone
}

func (f *fakeSessions) Current() (domain.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return domain.Identity{}, false
	}
	return *f.current, true
}

func (f *fakeSessions) SignIn(_ context.Context, username, _ string) (domain.Identity, error) {
	if f.signErr != nil {
		return domain.Identity{}, f.signErr
	}
	id := domain.Identity{ID: "id-" + username, Username: username}
	f.mu.Lock()
	f.current = &id
	f.mu.Unlock()
	if f.onSign != nil {
		f.onSign(id)
	}
	return id, nil
}

func (f *fakeSessions) SignUp(ctx context.Context, username, password string) (domain.Identity, error) {
	return f.SignIn(ctx, username, password)
}

func (f *fakeSessions) SignOut(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	return nil
}

type fakeAPI struct{}

func (fakeAPI) PendingFriendRequests(context.Context) ([]domain.FriendRequest, error) {
	return []domain.FriendRequest{{ID: "r1", Sender: domain.Identity{ID: "u2"}}}, nil
}
func (fakeAPI) RespondFriendRequest(context.Context, string, domain.FriendRequestStatus) error {
	return nil
}
func (fakeAPI) SendFriendRequest(context.Context, string) error { return rest.ErrUnauthorized }
func (fakeAPI) Friends(context.Context) ([]domain.Identity, error) {
	return []domain.Identity{{ID: "u2"}}, nil
}
func (fakeAPI) Conversations(context.Context) ([]domain.Conversation, error) { return nil, nil }
func (fakeAPI) OpenConversation(_ context.Context, peer string) (domain.Conversation, error) {
	return domain.Conversation{ID: "c-" + peer}, nil
}
func (fakeAPI) SearchUsers(context.Context, string) ([]domain.Identity, error) { return nil, nil }

type deadDialer struct{}

func (deadDialer) Dial(context.Context, string) (channel.Conn, error) {
	return nil, errors.New("connection refused")
}

func newTestServer(t *testing.T, sessions *fakeSessions) (*httptest.Server, *realtime.Sync) {
	t.Helper()
	reg := prometheus.NewRegistry()
	rt := realtime.New(realtime.Config{Dialer: deadDialer{}, API: fakeAPI{}, Metrics: metrics.New(reg)})
	t.Cleanup(func() { rt.Stop(context.Background()) })
	sessions.onSign = func(id domain.Identity) { _, _ = rt.Start(context.Background(), id) }

	r := chi.NewRouter()
	NewHandler(sessions, rt, nil, reg).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, rt
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{})

	if resp := do(t, http.MethodGet, srv.URL+"/api/state", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("state without session = %d", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, srv.URL+"/api/session", "")
	var body map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["state"] != "none" {
		t.Errorf("session = %v", body)
	}
}

func TestSignInThenState(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{})

	if resp := do(t, http.MethodPost, srv.URL+"/api/session/signin", `{"username":"alice"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing password = %d", resp.StatusCode)
	}
	resp := do(t, http.MethodPost, srv.URL+"/api/session/signin", `{"username":"alice","password":"pw"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state = %d", resp.StatusCode)
	}
	var view realtime.View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Self.ID != "id-alice" || view.Connection != "errored" {
		t.Errorf("view = %+v", view)
	}

	if resp := do(t, http.MethodPost, srv.URL+"/api/rooms/c1/join", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("join = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, srv.URL+"/api/friend-requests/r1", `{"response":"maybe"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad response = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, srv.URL+"/api/friend-requests/r1", `{"response":"declined"}`); resp.StatusCode != http.StatusNoContent {
		t.Errorf("respond = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/api/friend-requests/to/u9", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("send with rejected token = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, srv.URL+"/api/conversations/with/u2", "")
	var conv domain.Conversation
	_ = json.NewDecoder(resp.Body).Decode(&conv)
	if resp.StatusCode != http.StatusOK || conv.ID != "c-u2" {
		t.Errorf("open = %d %+v", resp.StatusCode, conv)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/api/users/search?q=x", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("search = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/api/notices/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("dismiss unknown = %d", resp.StatusCode)
	}
}

func TestSignInPassesThroughClientErrors(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{signErr: &rest.StatusError{Status: http.StatusUnauthorized, Message: "bad credentials"}})

	resp := do(t, http.MethodPost, srv.URL+"/api/session/signin", `{"username":"alice","password":"pw"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "bad credentials" {
		t.Errorf("body = %v", body)
	}
}

func TestSessionNotReady(t *testing.T) {
	alice := domain.Identity{ID: "u1"}
	srv, _ := newTestServer(t, &fakeSessions{current: &alice})

	if resp := do(t, http.MethodGet, srv.URL+"/api/state", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("state before sync = %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{})

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	var body map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics = %d", resp.StatusCode)
	}
}

func TestRoutesAdvertiseOnlyServedMethods(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(&fakeSessions{}, realtime.New(realtime.Config{}), nil, prometheus.NewRegistry()).RegisterRoutes(r)

	got, err := middleware.RouteMethods(r)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"DELETE", "GET", "POST", "PUT"}; !slices.Equal(got, want) {
		t.Errorf("methods = %v, want %v", got, want)
	}
}
