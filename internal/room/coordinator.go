// Package room tracks the single conversation room the client is joined to.
package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/chatsync/internal/events"
)

// Announcer sends a room membership frame over the channel connection.
type Announcer interface {
	Send(ctx context.Context, name events.Name, payload any) error
}

// Clearer resets the unread counter of a conversation.
type Clearer interface {
	Clear(conversationID string)
}

// Coordinator enforces at most one joined room.
//
// opMu serializes Join/Leave so announcements never interleave. mu guards the
// joined marker only and is never held while calling out, because the unread
// ledger reads the marker under its own lock.
type Coordinator struct {
	opMu   sync.Mutex
	mu     sync.RWMutex
	joined string
	last   string

	announcer Announcer
	unread    Clearer
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator. unread may be nil.
func NewCoordinator(announcer Announcer, unread Clearer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{announcer: announcer, unread: unread, logger: logger}
}

// SetClearer wires the unread ledger after construction.
func (c *Coordinator) SetClearer(unread Clearer) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.unread = unread
}

// IsJoined reports whether conversationID is the joined room.
func (c *Coordinator) IsJoined(conversationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined != "" && c.joined == conversationID
}

// Current returns the joined conversation id, or "" when none.
func (c *Coordinator) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

// Join leaves any other room, marks conversationID joined, announces it and
// clears its unread counter. Joining the joined room again only re-clears.
//
// A failed announcement is returned but the local marker stays set, so unread
// suppression holds while real-time delivery is degraded.
func (c *Coordinator) Join(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	prev := c.Current()
	if prev == conversationID {
		c.clear(conversationID)
		return nil
	}
	if prev != "" {
		if err := c.leaveLocked(ctx, prev); err != nil {
			c.logger.Warn("Failed to announce room leave", "conversation_id", prev, "error", err)
		}
	}

	c.mu.Lock()
	c.joined = conversationID
	c.last = conversationID
	c.mu.Unlock()

	err := c.announce(ctx, events.JoinChat, conversationID)
	c.clear(conversationID)
	if err != nil {
		c.logger.Warn("Failed to announce room join", "conversation_id", conversationID, "error", err)
		return err
	}
	c.logger.Debug("Joined room", "conversation_id", conversationID)
	return nil
}

// Leave announces departure from the joined room and clears the marker.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	prev := c.Current()
	if prev == "" {
		return nil
	}
	c.mu.Lock()
	c.last = ""
	c.mu.Unlock()
	return c.leaveLocked(ctx, prev)
}

// Rejoin re-announces the last joined room after the connection was reopened.
// It returns the room id, or "" when there was none.
func (c *Coordinator) Rejoin(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()
	if last == "" {
		return "", nil
	}

	c.mu.Lock()
	c.joined = last
	c.mu.Unlock()

	err := c.announce(ctx, events.JoinChat, last)
	c.clear(last)
	return last, err
}

// Reset forgets the joined room without announcing anything.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = ""
	c.last = ""
}

func (c *Coordinator) leaveLocked(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	c.joined = ""
	c.mu.Unlock()
	return c.announce(ctx, events.LeaveChat, conversationID)
}

func (c *Coordinator) announce(ctx context.Context, name events.Name, conversationID string) error {
	if c.announcer == nil {
		return nil
	}
	return c.announcer.Send(ctx, name, conversationID)
}

func (c *Coordinator) clear(conversationID string) {
	if c.unread != nil {
		c.unread.Clear(conversationID)
	}
}
