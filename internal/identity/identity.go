// Package identity provides the session provider: who is signed in, and
// notifications when that changes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/store"
)

// ErrNoSession is returned when an operation needs an active session.
var ErrNoSession = errors.New("no active session")

// Authenticator exchanges a username and password for credentials.
type Authenticator interface {
	SignIn(ctx context.Context, username, password string) (*domain.Credentials, error)
	SignUp(ctx context.Context, username, password string) (*domain.Credentials, error)
}

// Provider owns the current identity. One session per process.
type Provider struct {
	repo   store.Repository
	auth   Authenticator
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	state domain.SessionState
	creds *domain.Credentials

	// notifyMu keeps transitions delivered in order without holding mu.
	notifyMu  sync.Mutex
	subMu     sync.Mutex
	listeners map[int]func(domain.SessionTransition)
	nextID    int
}

// NewProvider creates a provider. repo may be nil, in which case nothing is persisted.
func NewProvider(repo store.Repository, auth Authenticator, ttl time.Duration, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		repo:      repo,
		auth:      auth,
		ttl:       ttl,
		logger:    logger,
		listeners: make(map[int]func(domain.SessionTransition)),
	}
}

// Subscribe registers fn for future transitions and returns a function that
// removes it. Transitions are delivered synchronously, in order.
func (p *Provider) Subscribe(fn func(domain.SessionTransition)) func() {
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		delete(p.listeners, id)
		p.subMu.Unlock()
	}
}

// State returns the session state.
func (p *Provider) State() domain.SessionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Current returns the active identity.
func (p *Provider) Current() (domain.Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != domain.SessionActive || p.creds == nil {
		return domain.Identity{}, false
	}
	return p.creds.Identity, true
}

// Token returns the bearer token of the active session, or "".
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != domain.SessionActive || p.creds == nil {
		return ""
	}
	return p.creds.Token
}

// Restore activates the most recently persisted credentials.
func (p *Provider) Restore(ctx context.Context) (domain.Identity, error) {
	if p.repo == nil {
		return domain.Identity{}, ErrNoSession
	}
	creds, err := p.repo.LoadCredentials(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load credentials: %w", err)
	}
	if !creds.Valid() {
		return domain.Identity{}, ErrNoSession
	}
	if creds.Expired(p.ttl, time.Now()) {
		p.logger.Info("Stored credentials expired", "user_id", creds.ID)
		if err := p.repo.DeleteCredentials(ctx, creds.ID); err != nil {
			p.logger.Warn("Failed to delete expired credentials", "user_id", creds.ID, "error", err)
		}
		return domain.Identity{}, ErrNoSession
	}

	p.activate(creds)
	p.logger.Info("Session restored", "user_id", creds.ID)
	return creds.Identity, nil
}

// SignIn authenticates and activates the returned identity.
func (p *Provider) SignIn(ctx context.Context, username, password string) (domain.Identity, error) {
	return p.authenticate(ctx, "sign in", username, password, p.auth.SignIn)
}

// SignUp registers and activates the new identity.
func (p *Provider) SignUp(ctx context.Context, username, password string) (domain.Identity, error) {
	return p.authenticate(ctx, "sign up", username, password, p.auth.SignUp)
}

func (p *Provider) authenticate(
	ctx context.Context,
	op, username, password string,
	fn func(context.Context, string, string) (*domain.Credentials, error),
) (domain.Identity, error) {
	if p.auth == nil {
		return domain.Identity{}, fmt.Errorf("%s: no authenticator configured", op)
	}

	p.transition(domain.SessionAuthenticating, nil)

	creds, err := fn(ctx, username, password)
	if err != nil {
		p.transition(domain.SessionNone, nil)
		return domain.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	if creds.IssuedAt.IsZero() {
		creds.IssuedAt = time.Now()
	}
	if p.repo != nil {
		if err := p.repo.SaveCredentials(ctx, creds); err != nil {
			p.logger.Warn("Failed to persist credentials", "user_id", creds.ID, "error", err)
		}
	}

	p.activate(creds)
	p.logger.Info("Signed in", "user_id", creds.ID, "username", creds.Username)
	return creds.Identity, nil
}

// SignOut ends the session and forgets its persisted credentials.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.RLock()
	creds := p.creds
	p.mu.RUnlock()
	if creds == nil {
		return nil
	}

	p.transition(domain.SessionNone, nil)
	p.logger.Info("Signed out", "user_id", creds.ID)

	if p.repo != nil {
		if err := p.repo.DeleteCredentials(ctx, creds.ID); err != nil {
			return fmt.Errorf("delete credentials: %w", err)
		}
	}
	return nil
}

// ExpireIfStale signs out when the active credentials are older than the TTL.
func (p *Provider) ExpireIfStale(ctx context.Context, now time.Time) bool {
	p.mu.RLock()
	creds := p.creds
	p.mu.RUnlock()
	if creds == nil || !creds.Expired(p.ttl, now) {
		return false
	}
	p.logger.Info("Session expired", "user_id", creds.ID)
	if err := p.SignOut(ctx); err != nil {
		p.logger.Warn("Failed to clear expired session", "user_id", creds.ID, "error", err)
	}
	return true
}

func (p *Provider) activate(creds *domain.Credentials) {
	c := *creds
	p.transition(domain.SessionActive, &c)
}

// transition swaps state and delivers the change to listeners, outside mu.
func (p *Provider) transition(to domain.SessionState, creds *domain.Credentials) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	tr := domain.SessionTransition{From: p.state, To: to}
	if p.creds != nil {
		tr.Previous = p.creds.Identity
	}
	p.state = to
	p.creds = creds
	if creds != nil {
		tr.Identity = creds.Identity
	}
	p.mu.Unlock()

	if tr.From == tr.To && !tr.IdentityChanged() {
		return
	}

	p.subMu.Lock()
	listeners := make([]func(domain.SessionTransition), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.subMu.Unlock()

	for _, fn := range listeners {
		fn(tr)
	}
}
