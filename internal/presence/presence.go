// Package presence tracks which identities are currently online.
package presence

import (
	"slices"
	"sync"
)

// Tracker holds the last full roster received from the server.
// An empty tracker means nobody is known to be online.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
	order  []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// Replace swaps the whole set for ids. Earlier snapshots are not merged.
func (t *Tracker) Replace(ids []string) {
	online := make(map[string]struct{}, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := online[id]; dup {
			continue
		}
		online[id] = struct{}{}
		order = append(order, id)
	}

	t.mu.Lock()
	t.online = online
	t.order = order
	t.mu.Unlock()
}

// IsOnline reports whether id was in the last snapshot.
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[id]
	return ok
}

// Online returns the ids of the last snapshot in arrival order.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.order)
}

// Len returns the number of online identities.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Reset forgets everyone.
func (t *Tracker) Reset() {
	t.Replace(nil)
}
