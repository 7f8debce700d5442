package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/events"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Hub accepts channel connections and relays events between them.
type Hub struct {
	reg           *Registry
	allowedOrigin string
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a hub. allowedOrigin "*" or "" accepts any origin.
func New(allowedOrigin string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{reg: NewRegistry(), allowedOrigin: allowedOrigin, logger: logger, now: time.Now}
}

// Online returns the ids of connected identities.
func (h *Hub) Online() []string { return h.reg.Online() }

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	patterns := []string{"*"}
	if h.allowedOrigin != "" && h.allowedOrigin != "*" {
		patterns = []string{h.allowedOrigin}
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: patterns})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	p := &peer{id: uuid.NewString(), ws: ws}
	h.logger.Info("Hub connection accepted", "conn_id", p.id, "ip", r.RemoteAddr, "user_hint", r.URL.Query().Get("userId"))

	defer func() {
		if h.reg.Unregister(p) {
			h.broadcastPresence(context.Background())
		}
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "conn_id", p.id)
		}
	}()

	h.readLoop(r.Context(), p)
}

func (h *Hub) readLoop(ctx context.Context, p *peer) {
	for {
		_, raw, err := p.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "user_id", p.userID)
			} else if !errors.Is(err, context.Canceled) {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", p.userID)
			}
			return
		}

		name, id, err := events.DecodeOutbound(raw)
		if err != nil {
			h.logger.Debug("Dropping client frame", "error", err, "conn_id", p.id)
			continue
		}

		switch name {
		case events.Setup:
			if h.reg.Register(id, p) {
				h.broadcastPresence(ctx)
			} else {
				h.sendPresence(ctx, p)
			}
		case events.DisconnectUser:
			if p.userID != id {
				h.logger.Warn("Disconnect for another identity ignored", "user_id", p.userID, "requested", id)
				continue
			}
			return
		case events.JoinChat:
			h.reg.SetRoom(p, id)
			h.logger.Debug("Joined room", "user_id", p.userID, "conversation_id", id)
		case events.LeaveChat:
			h.reg.LeaveRoom(p, id)
		}
	}
}

// DeliverMessage relays msg to every connection of its participants and sends
// an unread notification to each recipient not joined to the conversation.
// Missing id and timestamp are filled in; the delivered message is returned.
func (h *Hub) DeliverMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.ConversationID == "" || msg.Sender.ID == "" {
		return msg, fmt.Errorf("deliver message: conversation and sender are required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = h.now()
	}

	recipients := participantIDs(msg)
	for _, uid := range recipients {
		h.send(ctx, uid, events.MessageEvent{Message: msg})
		if uid == msg.Sender.ID || h.reg.InRoom(uid, msg.ConversationID) {
			continue
		}
		h.send(ctx, uid, events.Notification{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			SenderID:       msg.Sender.ID,
		})
	}
	return msg, nil
}

// DeliverFriendRequest pushes a pending request to every connection of toUserID.
func (h *Hub) DeliverFriendRequest(ctx context.Context, toUserID string, req domain.FriendRequest) (domain.FriendRequest, error) {
	if toUserID == "" || req.Sender.ID == "" {
		return req, fmt.Errorf("deliver friend request: recipient and sender are required")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = h.now()
	}
	req.Status = domain.FriendRequestPending
	h.send(ctx, toUserID, events.FriendRequestEvent{Request: req})
	return req, nil
}

func participantIDs(msg domain.Message) []string {
	seen := make(map[string]bool, len(msg.Participants)+1)
	ids := make([]string, 0, len(msg.Participants)+1)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(msg.Sender.ID)
	for _, p := range msg.Participants {
		add(p.ID)
	}
	return ids
}

func (h *Hub) broadcastPresence(ctx context.Context) {
	data, err := events.EncodeEvent(events.Presence{UserIDs: h.reg.Online()})
	if err != nil {
		h.logger.Error("Failed to encode presence", "error", err)
		return
	}
	for _, p := range h.reg.peers("") {
		h.write(ctx, p, data)
	}
}

func (h *Hub) sendPresence(ctx context.Context, p *peer) {
	data, err := events.EncodeEvent(events.Presence{UserIDs: h.reg.Online()})
	if err != nil {
		return
	}
	h.write(ctx, p, data)
}

func (h *Hub) send(ctx context.Context, userID string, ev events.Event) {
	data, err := events.EncodeEvent(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", ev.Name(), "error", err)
		return
	}
	for _, p := range h.reg.peers(userID) {
		h.write(ctx, p, data)
	}
}

func (h *Hub) write(ctx context.Context, p *peer, data []byte) {
	if err := p.write(ctx, data); err != nil {
		h.logger.Debug("Hub write failed", "conn_id", p.id, "error", err)
	}
}
