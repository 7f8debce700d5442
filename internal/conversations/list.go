// Package conversations keeps the recency-ordered conversation list.
package conversations

import (
	"sort"
	"sync"
	"time"

	"github.com/ashureev/chatsync/internal/domain"
)

// seenCapacity bounds how many applied message ids are remembered for replay
// detection.
const seenCapacity = 1024

// RefreshToken marks the point at which a snapshot fetch began.
type RefreshToken uint64

type entry struct {
	conv        domain.Conversation
	seq         uint64
	provisional bool
}

// List merges REST snapshots with live messageReceived events.
//
// Entries are ordered by UpdatedAt descending; ties keep their previous
// relative order. An entry synthesized from an event is provisional until an
// authoritative snapshot or create-or-fetch result replaces it by id.
type List struct {
	mu       sync.RWMutex
	selfID   string
	items    []*entry
	seq      uint64
	applied  RefreshToken
	seen     map[string]struct{}
	seenFIFO []string
	now      func() time.Time
	onChange func(n int)
}

// NewList creates an empty list for the identity selfID.
func NewList(selfID string) *List {
	return &List{selfID: selfID, seen: make(map[string]struct{}), now: time.Now}
}

// OnChange registers fn to receive the list length after every mutation.
// fn runs with the list lock held.
func (l *List) OnChange(fn func(n int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// BeginRefresh returns the token to pass to ApplySnapshot once the fetch completes.
func (l *List) BeginRefresh() RefreshToken {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RefreshToken(l.seq)
}

// ApplySnapshot makes convs authoritative while keeping live updates newer
// than tok. It returns false when a later snapshot has already been applied.
func (l *List) ApplySnapshot(tok RefreshToken, convs []domain.Conversation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tok < l.applied {
		return false
	}
	l.applied = tok

	live := make(map[string]*entry, len(l.items))
	for _, e := range l.items {
		if e.seq > uint64(tok) {
			live[e.conv.ID] = e
		}
	}

	seen := make(map[string]struct{}, len(convs))
	items := make([]*entry, 0, len(convs)+len(live))
	for _, c := range convs {
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if c.LastMessage != nil {
			l.remember(c.LastMessage.ID)
		}
		e := &entry{conv: c.Clone(), seq: uint64(tok)}
		if newer, ok := live[c.ID]; ok {
			e = merge(c, newer)
		}
		items = append(items, e)
	}
	for _, e := range l.items {
		if _, ok := seen[e.conv.ID]; !ok && e.seq > uint64(tok) {
			items = append(items, e)
		}
	}

	l.items = items
	l.sort()
	l.changed()
	return true
}

// ApplyMessage folds a received message into the list. It reports whether a
// new entry was created and whether anything changed. Replays of any recently
// applied message and messages older than the entry are ignored.
func (l *List) ApplyMessage(msg domain.Message) (created, changed bool) {
	if msg.ConversationID == "" {
		return false, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.ID != "" {
		if _, dup := l.seen[msg.ID]; dup {
			return false, false
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = l.now()
	}

	m := msg
	if e := l.find(msg.ConversationID); e != nil {
		if msg.CreatedAt.Before(e.conv.UpdatedAt) {
			return false, false
		}
		l.remember(msg.ID)
		l.seq++
		e.seq = l.seq
		e.conv.LastMessage = &m
		e.conv.UpdatedAt = msg.CreatedAt
		l.sort()
		l.changed()
		return false, true
	}

	participants := append([]domain.Identity(nil), msg.Participants...)
	if len(participants) == 0 {
		participants = []domain.Identity{msg.Sender}
		if msg.Sender.ID != l.selfID {
			participants = append(participants, domain.Identity{ID: l.selfID})
		}
	}

	l.remember(msg.ID)
	l.seq++
	l.items = append(l.items, &entry{
		conv: domain.Conversation{
			ID:           msg.ConversationID,
			Participants: participants,
			LastMessage:  &m,
			UpdatedAt:    msg.CreatedAt,
		},
		seq:         l.seq,
		provisional: true,
	})
	l.sort()
	l.changed()
	return true, true
}

// Upsert applies an authoritative conversation, such as a create-or-fetch
// result, replacing any entry with the same id.
func (l *List) Upsert(conv domain.Conversation) {
	if conv.ID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if conv.LastMessage != nil {
		l.remember(conv.LastMessage.ID)
	}
	l.seq++
	if e := l.find(conv.ID); e != nil {
		merged := merge(conv, e)
		*e = *merged
		e.seq = l.seq
	} else {
		l.items = append(l.items, &entry{conv: conv.Clone(), seq: l.seq})
	}
	l.sort()
	l.changed()
}

// Conversations returns deep copies in display order.
func (l *List) Conversations() []domain.Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Conversation, len(l.items))
	for i, e := range l.items {
		out[i] = e.conv.Clone()
	}
	return out
}

// Get returns the conversation with id.
func (l *List) Get(id string) (domain.Conversation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e := l.find(id); e != nil {
		return e.conv.Clone(), true
	}
	return domain.Conversation{}, false
}

// Provisional reports whether the entry for id was synthesized from an event
// and not yet confirmed by the server.
func (l *List) Provisional(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := l.find(id)
	return e != nil && e.provisional
}

// Len returns the number of conversations.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Reset drops every entry and invalidates outstanding snapshot fetches.
func (l *List) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.seen = make(map[string]struct{})
	l.seenFIFO = nil
	l.seq++
	l.applied = RefreshToken(l.seq)
	l.changed()
}

// remember records id as applied, forgetting the oldest id beyond seenCapacity.
func (l *List) remember(id string) {
	if id == "" {
		return
	}
	if _, ok := l.seen[id]; ok {
		return
	}
	l.seen[id] = struct{}{}
	l.seenFIFO = append(l.seenFIFO, id)
	if len(l.seenFIFO) > seenCapacity {
		delete(l.seen, l.seenFIFO[0])
		l.seenFIFO = l.seenFIFO[1:]
	}
}

func (l *List) find(id string) *entry {
	for _, e := range l.items {
		if e.conv.ID == id {
			return e
		}
	}
	return nil
}

func (l *List) sort() {
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].conv.UpdatedAt.After(l.items[j].conv.UpdatedAt)
	})
}

func (l *List) changed() {
	if l.onChange != nil {
		l.onChange(len(l.items))
	}
}

// merge takes participants from the authoritative copy and keeps the live
// last message when it is newer.
func merge(auth domain.Conversation, live *entry) *entry {
	out := &entry{conv: auth.Clone(), seq: live.seq}
	if live.conv.UpdatedAt.After(auth.UpdatedAt) {
		out.conv.UpdatedAt = live.conv.UpdatedAt
		if live.conv.LastMessage != nil {
			msg := *live.conv.LastMessage
			out.conv.LastMessage = &msg
		}
	}
	return out
}
