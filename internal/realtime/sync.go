package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/chatsync/internal/channel"
	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/metrics"
)

// Config wires a Sync to its collaborators.
type Config struct {
	Dialer         channel.Dialer
	API            API
	DialTimeout    time.Duration
	NoticeCapacity int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// SessionSource yields the current identity and announces changes to it.
type SessionSource interface {
	Current() (domain.Identity, bool)
	Subscribe(fn func(domain.SessionTransition)) func()
}

// Sync follows the session provider: it builds a Session when an identity
// becomes active and tears it down when the identity goes away or changes.
type Sync struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
}

// New creates a Sync.
func New(cfg Config) *Sync {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sync{cfg: cfg, logger: cfg.Logger}
}

// Attach follows src until the returned function is called. If src already has
// an active identity, a session is started for it immediately.
func (s *Sync) Attach(ctx context.Context, src SessionSource) func() {
	unsubscribe := src.Subscribe(s.HandleTransition)
	if id, ok := src.Current(); ok {
		if _, err := s.Start(ctx, id); err != nil {
			s.logger.Warn("Session started without real-time updates", "user_id", id.ID, "error", err)
		}
	}
	return func() {
		unsubscribe()
		s.Stop(context.Background())
	}
}

// HandleTransition reacts to a session provider transition.
func (s *Sync) HandleTransition(tr domain.SessionTransition) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if tr.To != domain.SessionActive {
		s.Stop(ctx)
		return
	}
	if _, err := s.Start(ctx, tr.Identity); err != nil {
		s.logger.Warn("Session started without real-time updates", "user_id", tr.Identity.ID, "error", err)
	}
}

// Start makes id the active session. A session for the same identity is kept,
// even while it is still connecting; a session for another identity is torn
// down first. The returned error is a connect failure only; the session is
// usable either way. The dial runs without holding the Sync lock, so Session
// and Stop never wait on it.
func (s *Sync) Start(ctx context.Context, id domain.Identity) (*Session, error) {
	sess, fresh := s.install(ctx, id)
	if !fresh {
		return sess, nil
	}
	return sess, sess.connect(ctx)
}

func (s *Sync) install(ctx context.Context, id domain.Identity) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Live() && s.current.self.ID == id.ID {
		return s.current, false
	}
	if s.current != nil {
		s.current.teardown(ctx)
		s.current = nil
	}

	sess := newSession(id, s.cfg)
	sess.begin()
	s.current = sess
	s.logger.Info("Starting real-time session", "user_id", id.ID)
	return sess, true
}

// Stop tears down the active session, if any.
func (s *Sync) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.teardown(ctx)
	s.current = nil
}

// Session returns the active session, or nil.
func (s *Sync) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
