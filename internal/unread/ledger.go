// Package unread keeps per-conversation unread counters.
package unread

import (
	"maps"
	"sync"
)

// RoomState reports whether a conversation is the currently joined room.
type RoomState interface {
	IsJoined(conversationID string) bool
}

// Ledger maps conversation ids to unread counts. Absence means zero.
//
// The joined check in RecordInbound runs under the ledger lock, and Clear takes
// the same lock, so a join that marks the room before clearing can never be
// overtaken by an increment for that room.
type Ledger struct {
	mu       sync.Mutex
	rooms    RoomState
	entries  map[string]int
	total    int
	onChange func(total int)
}

// NewLedger creates an empty ledger. rooms may be nil when nothing is ever joined.
func NewLedger(rooms RoomState) *Ledger {
	return &Ledger{rooms: rooms, entries: make(map[string]int)}
}

// SetRoomState wires the room source after construction.
func (l *Ledger) SetRoomState(rooms RoomState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rooms = rooms
}

// OnChange registers fn to receive the new total after every mutation.
// fn runs with the ledger lock held and must not call back into the ledger.
func (l *Ledger) OnChange(fn func(total int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// RecordInbound counts one inbound message for conversationID unless it is the
// joined room. It reports whether the counter changed.
func (l *Ledger) RecordInbound(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rooms != nil && l.rooms.IsJoined(conversationID) {
		return false
	}
	l.entries[conversationID]++
	l.total++
	l.changed()
	return true
}

// Clear resets the counter for conversationID.
func (l *Ledger) Clear(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.entries[conversationID]
	if !ok {
		return
	}
	delete(l.entries, conversationID)
	l.total -= n
	l.changed()
}

// Count returns the unread count of conversationID.
func (l *Ledger) Count(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[conversationID]
}

// Total returns the sum over all entries.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Snapshot returns a copy of all entries.
func (l *Ledger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.entries)
}

// Reset drops every entry.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return
	}
	l.entries = make(map[string]int)
	l.total = 0
	l.changed()
}

func (l *Ledger) changed() {
	if l.onChange != nil {
		l.onChange(l.total)
	}
}
