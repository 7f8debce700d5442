// Package hub is a reference relay for the channel event contract: it tracks
// who is connected, which room each connection joined, and fans events out.
package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// peer is one accepted connection.
type peer struct {
	id     string
	ws     *websocket.Conn
	userID string
	room   string

	writeMu sync.Mutex
}

func (p *peer) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.Write(ctx, websocket.MessageText, data)
}

// Registry maps identities to their connections and connections to rooms.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]*peer)}
}

// Register binds p to userID. It returns true when userID was offline before.
func (r *Registry) Register(userID string, p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.userID != "" && p.userID != userID {
		r.removeLocked(p)
	}
	conns, exists := r.active[userID]
	if !exists {
		conns = make(map[string]*peer)
		r.active[userID] = conns
	}
	conns[p.id] = p
	p.userID = userID
	slog.Info("Hub connection registered", "user_id", userID, "conn_id", p.id)
	return !exists
}

// Unregister removes p. It returns true when its identity has no connection left.
func (r *Registry) Unregister(p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(p)
}

func (r *Registry) removeLocked(p *peer) bool {
	conns, ok := r.active[p.userID]
	if !ok {
		return false
	}
	if current, exists := conns[p.id]; !exists || current != p {
		return false
	}
	delete(conns, p.id)
	slog.Info("Hub connection unregistered", "user_id", p.userID, "conn_id", p.id)
	if len(conns) == 0 {
		delete(r.active, p.userID)
		return true
	}
	return false
}

// SetRoom records the room p joined. An empty id leaves any room.
func (r *Registry) SetRoom(p *peer, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.room = conversationID
}

// LeaveRoom clears p's room if it is conversationID.
func (r *Registry) LeaveRoom(p *peer, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.room == conversationID {
		p.room = ""
	}
}

// InRoom reports whether any connection of userID joined conversationID.
func (r *Registry) InRoom(userID, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.active[userID] {
		if p.room == conversationID {
			return true
		}
	}
	return false
}

// Online returns the sorted ids of connected identities.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// peers returns the connections of userID, or of every identity when userID is "".
func (r *Registry) peers(userID string) []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*peer
	for uid, conns := range r.active {
		if userID != "" && uid != userID {
			continue
		}
		for _, p := range conns {
			out = append(out, p)
		}
	}
	return out
}
