// Package notice keeps transient, dismissible notices for the user.
package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a single user-facing message.
type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

const defaultCapacity = 50

// Board is a bounded list of notices, newest last.
type Board struct {
	mu       sync.Mutex
	items    []Notice
	capacity int
	now      func() time.Time
}

// NewBoard creates a board keeping at most capacity notices.
func NewBoard(capacity int) *Board {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Board{capacity: capacity, now: time.Now}
}

// Post adds a notice and returns its id. The oldest notice is evicted when full.
func (b *Board) Post(level Level, text string) string {
	n := Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Text:      text,
		CreatedAt: b.now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.capacity; over > 0 {
		b.items = append([]Notice(nil), b.items[over:]...)
	}
	return n.ID
}

// Dismiss removes the notice with id. It returns false if none matched.
func (b *Board) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.items {
		if n.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the current notices.
func (b *Board) List() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notice(nil), b.items...)
}

// Reset drops every notice.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}
