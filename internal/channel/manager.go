// Package channel owns the lifecycle of the persistent event connection.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/chatsync/internal/events"
	"github.com/ashureev/chatsync/internal/metrics"
	"github.com/google/uuid"
)

// State is the lifecycle state of the channel connection.
type State int

const (
	StateAbsent State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "absent"
	}
}

var (
	ErrNotOpen    = errors.New("channel connection not open")
	ErrConnect    = errors.New("channel connection failed")
	ErrSuperseded = errors.New("connection attempt superseded")
)

// Conn is one duplex message stream.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Dialer opens a connection for an identity.
type Dialer interface {
	Dial(ctx context.Context, identityID string) (Conn, error)
}

// Options tunes a Manager.
type Options struct {
	// DialTimeout bounds a connection attempt. Zero means no limit.
	DialTimeout time.Duration
	// WriteTimeout bounds a single frame write. Zero means 10s.
	WriteTimeout time.Duration
	// OnState is called on every state change with the lock held.
	// It must not call back into the Manager.
	OnState func(state State, err error)
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Manager is the only writer of connection state. Inbound frames are handed
// to the frame handler one at a time, in arrival order, from a single reader
// goroutine per connection.
type Manager struct {
	dialer  Dialer
	handler func([]byte)
	opts    Options
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	identityID string
	conn       Conn
	connID     string
	attempt    uint64
	readDone   chan struct{}

	writeMu sync.Mutex
}

// NewManager creates a manager delivering inbound frames to handler.
func NewManager(dialer Dialer, handler func([]byte), opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if handler == nil {
		handler = func([]byte) {}
	}
	return &Manager{
		dialer:  dialer,
		handler: handler,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IdentityID returns the identity the connection belongs to.
func (m *Manager) IdentityID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identityID
}

// ConnectionID returns the id of the open connection, or "".
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Open connects for identityID and announces it with a setup frame.
// It is a no-op while a connection for the same identity is connecting or open;
// a connection for another identity is closed first. A failed attempt leaves the
// manager errored and returns an error wrapping ErrConnect.
func (m *Manager) Open(ctx context.Context, identityID string) error {
	if identityID == "" {
		return fmt.Errorf("%w: empty identity", ErrConnect)
	}

	m.mu.Lock()
	if m.identityID == identityID && (m.state == StateConnecting || m.state == StateOpen) {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		if err := m.Close(ctx); err != nil {
			m.logger.Warn("Failed to close previous connection", "error", err)
		}
		m.mu.Lock()
	}
	m.attempt++
	attempt := m.attempt
	m.identityID = identityID
	m.setState(StateConnecting, nil)
	m.mu.Unlock()

	dialCtx := ctx
	if m.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.opts.DialTimeout)
		defer cancel()
	}

	m.logger.Info("Opening channel connection")
	conn, err := m.dialer.Dial(dialCtx, identityID)
	m.opts.Metrics.ConnectAttempt(err)
	if err != nil {
		m.mu.Lock()
		if m.attempt == attempt {
			m.setState(StateErrored, err)
		}
		m.mu.Unlock()
		m.logger.Warn("Channel connection failed, continuing without real-time updates", "error", err)
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	if err := m.writeFrame(ctx, conn, events.Setup, identityID); err != nil {
		_ = conn.Close("handshake failed")
		m.mu.Lock()
		if m.attempt == attempt {
			m.setState(StateErrored, err)
		}
		m.mu.Unlock()
		return fmt.Errorf("%w: setup: %v", ErrConnect, err)
	}

	m.mu.Lock()
	if m.attempt != attempt {
		m.mu.Unlock()
		_ = conn.Close("superseded")
		return ErrSuperseded
	}
	done := make(chan struct{})
	m.conn = conn
	m.connID = uuid.NewString()
	m.readDone = done
	m.setState(StateOpen, nil)
	connID := m.connID
	m.mu.Unlock()

	m.logger.Info("Channel connection open", "conn_id", connID)
	go m.readLoop(conn, attempt, done)
	return nil
}

// Close announces departure and releases the connection. An attempt still
// dialing is abandoned. Closing an idle manager is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.attempt++
	conn := m.conn
	identityID := m.identityID
	done := m.readDone
	if conn == nil {
		if m.state == StateConnecting {
			m.setState(StateClosed, nil)
		}
		m.mu.Unlock()
		return nil
	}
	m.conn = nil
	m.connID = ""
	m.readDone = nil
	m.setState(StateClosed, nil)
	m.mu.Unlock()

	var errs []error
	if err := m.writeFrame(ctx, conn, events.DisconnectUser, identityID); err != nil {
		errs = append(errs, fmt.Errorf("announce disconnect: %w", err))
	}
	if err := conn.Close("session ended"); err != nil {
		m.logger.Debug("Failed to close channel connection", "error", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	m.logger.Info("Channel connection closed")
	return errors.Join(errs...)
}

// Send writes an outbound frame on the open connection.
func (m *Manager) Send(ctx context.Context, name events.Name, payload any) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}
	return m.writeFrame(ctx, conn, name, payload)
}

func (m *Manager) writeFrame(ctx context.Context, conn Conn, name events.Name, payload any) error {
	data, err := events.Encode(name, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
	defer cancel()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (m *Manager) readLoop(conn Conn, attempt uint64, done chan struct{}) {
	defer close(done)
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			m.mu.Lock()
			if m.attempt == attempt && m.conn == conn {
				m.conn = nil
				m.connID = ""
				m.readDone = nil
				m.setState(StateClosed, err)
				m.logger.Warn("Channel connection dropped", "error", err)
			}
			m.mu.Unlock()
			return
		}
		m.handler(data)
	}
}

func (m *Manager) setState(s State, err error) {
	m.state = s
	m.opts.Metrics.SetConnectionState(s.String())
	if m.opts.OnState != nil {
		m.opts.OnState(s, err)
	}
}
