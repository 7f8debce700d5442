// Package rest is the snapshot client for the social API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/chatsync/internal/domain"
)

// ErrUnauthorized is returned when the API rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx API response.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client calls the social API with the current session's bearer token.
type Client struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
}

// NewClient creates a client. token is consulted on every request and may be nil.
func NewClient(baseURL string, token func() string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// PendingFriendRequests fetches the authoritative pending inbox.
func (c *Client) PendingFriendRequests(ctx context.Context) ([]domain.FriendRequest, error) {
	var out []domain.FriendRequest
	if err := c.do(ctx, http.MethodGet, "/api/friends/requests/pending", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RespondFriendRequest accepts or declines a pending request.
func (c *Client) RespondFriendRequest(ctx context.Context, requestID string, response domain.FriendRequestStatus) error {
	if response != domain.FriendRequestAccepted && response != domain.FriendRequestDeclined {
		return fmt.Errorf("invalid friend request response %q", response)
	}
	path := "/api/friends/requests/" + url.PathEscape(requestID) + "/respond"
	return c.do(ctx, http.MethodPut, path, map[string]string{"response": string(response)}, nil)
}

// SendFriendRequest sends a friend request to userID.
func (c *Client) SendFriendRequest(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/friends/request/"+url.PathEscape(userID), nil, nil)
}

// Friends lists the current user's friends.
func (c *Client) Friends(ctx context.Context) ([]domain.Identity, error) {
	var out []domain.Identity
	if err := c.do(ctx, http.MethodGet, "/api/friends", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversations fetches the conversation list snapshot.
func (c *Client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	var out []domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/chat/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenConversation creates or fetches the conversation with peerID.
func (c *Client) OpenConversation(ctx context.Context, peerID string) (domain.Conversation, error) {
	var out domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/chat/conversations/"+url.PathEscape(peerID), nil, &out); err != nil {
		return domain.Conversation{}, err
	}
	if out.ID == "" {
		return domain.Conversation{}, fmt.Errorf("open conversation with %s: response has no id", peerID)
	}
	return out, nil
}

// SearchUsers finds users matching query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.Identity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	var out []domain.Identity
	if err := c.do(ctx, http.MethodGet, "/api/users/search?q="+url.QueryEscape(query), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SignIn exchanges a username and password for credentials.
func (c *Client) SignIn(ctx context.Context, username, password string) (*domain.Credentials, error) {
	return c.authenticate(ctx, "/api/auth/signin", username, password)
}

// SignUp registers a user and returns its credentials.
func (c *Client) SignUp(ctx context.Context, username, password string) (*domain.Credentials, error) {
	return c.authenticate(ctx, "/api/auth/signup", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (*domain.Credentials, error) {
	var out domain.Credentials
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if !out.Valid() {
		return nil, fmt.Errorf("%s: response missing identity or token", path)
	}
	out.IssuedAt = time.Now()
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	e := &StatusError{Method: method, Path: path, Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return e
	}
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &msg) == nil && msg.Message != "" {
		e.Message = msg.Message
	} else {
		e.Message = strings.TrimSpace(string(raw))
	}
	return e
}
