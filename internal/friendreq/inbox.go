// Package friendreq keeps the inbox of pending incoming friend requests.
package friendreq

import (
	"sync"

	"github.com/ashureev/chatsync/internal/domain"
)

// RefreshToken marks the point at which a snapshot fetch began.
type RefreshToken uint64

type entry struct {
	req domain.FriendRequest
	seq uint64
}

// Inbox is a newest-first queue of pending requests with unique ids.
//
// Every mutation advances a sequence number. A snapshot applied with a token
// keeps pushes newer than the token, and ignores ids removed or cleared after
// it, so a snapshot and a racing push never duplicate or lose an entry.
type Inbox struct {
	mu        sync.Mutex
	items     []entry
	ids       map[string]struct{}
	removed   map[string]uint64
	seq       uint64
	clearedAt uint64
	applied   RefreshToken
	onChange  func(n int)
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		ids:     make(map[string]struct{}),
		removed: make(map[string]uint64),
	}
}

// OnChange registers fn to receive the inbox length after every mutation.
// fn runs with the inbox lock held.
func (in *Inbox) OnChange(fn func(n int)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onChange = fn
}

// BeginRefresh returns the token to pass to ApplySnapshot once the fetch completes.
func (in *Inbox) BeginRefresh() RefreshToken {
	in.mu.Lock()
	defer in.mu.Unlock()
	return RefreshToken(in.seq)
}

// ApplySnapshot replaces the inbox with reqs, keeping entries pushed after tok.
// It returns false when a snapshot started later has already been applied.
func (in *Inbox) ApplySnapshot(tok RefreshToken, reqs []domain.FriendRequest) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if tok < in.applied {
		return false
	}
	in.applied = tok

	var items []entry
	ids := make(map[string]struct{}, len(reqs)+len(in.items))
	for _, e := range in.items {
		if e.seq > uint64(tok) {
			items = append(items, e)
			ids[e.req.ID] = struct{}{}
		}
	}

	if in.clearedAt <= uint64(tok) {
		for _, r := range reqs {
			if r.ID == "" || !r.IsPending() {
				continue
			}
			if _, dup := ids[r.ID]; dup {
				continue
			}
			if at, gone := in.removed[r.ID]; gone && at > uint64(tok) {
				continue
			}
			items = append(items, entry{req: r, seq: uint64(tok)})
			ids[r.ID] = struct{}{}
		}
	}

	for id, at := range in.removed {
		if at <= uint64(tok) {
			delete(in.removed, id)
		}
	}

	in.items = items
	in.ids = ids
	in.changed()
	return true
}

// Push inserts req at the front unless its id is already present or it is not pending.
func (in *Inbox) Push(req domain.FriendRequest) bool {
	if req.ID == "" || !req.IsPending() {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, dup := in.ids[req.ID]; dup {
		return false
	}
	in.seq++
	in.items = append([]entry{{req: req, seq: in.seq}}, in.items...)
	in.ids[req.ID] = struct{}{}
	in.changed()
	return true
}

// Remove drops the request with id after it was accepted or declined.
func (in *Inbox) Remove(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.seq++
	in.removed[id] = in.seq
	if _, ok := in.ids[id]; !ok {
		return false
	}
	delete(in.ids, id)
	for i, e := range in.items {
		if e.req.ID == id {
			in.items = append(in.items[:i], in.items[i+1:]...)
			break
		}
	}
	in.changed()
	return true
}

// ClearAll empties the inbox as a presentation-level acknowledgement.
// Snapshots that began before the clear no longer repopulate it.
func (in *Inbox) ClearAll() {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.seq++
	in.clearedAt = in.seq
	in.items = nil
	in.ids = make(map[string]struct{})
	in.changed()
}

// Pending returns the requests newest first.
func (in *Inbox) Pending() []domain.FriendRequest {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]domain.FriendRequest, len(in.items))
	for i, e := range in.items {
		out[i] = e.req
	}
	return out
}

// Contains reports whether id is in the inbox.
func (in *Inbox) Contains(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.ids[id]
	return ok
}

// Len returns the number of pending requests.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

// Reset discards all state, including outstanding refresh bookkeeping.
func (in *Inbox) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = nil
	in.ids = make(map[string]struct{})
	in.removed = make(map[string]uint64)
	in.seq++
	in.clearedAt = in.seq
	in.applied = RefreshToken(in.seq)
	in.changed()
}

func (in *Inbox) changed() {
	if in.onChange != nil {
		in.onChange(len(in.items))
	}
}
