// Package realtime ties the channel connection, its event handlers and the
// snapshot fetches together into one arena per signed-in session.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ashureev/chatsync/internal/channel"
	"github.com/ashureev/chatsync/internal/conversations"
	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/events"
	"github.com/ashureev/chatsync/internal/friendreq"
	"github.com/ashureev/chatsync/internal/metrics"
	"github.com/ashureev/chatsync/internal/notice"
	"github.com/ashureev/chatsync/internal/presence"
	"github.com/ashureev/chatsync/internal/room"
	"github.com/ashureev/chatsync/internal/unread"
)

// ErrSessionEnded is returned by operations on a session that was torn down.
var ErrSessionEnded = errors.New("session ended")

// API is the REST surface the session fetches snapshots from.
type API interface {
	PendingFriendRequests(ctx context.Context) ([]domain.FriendRequest, error)
	RespondFriendRequest(ctx context.Context, requestID string, response domain.FriendRequestStatus) error
	SendFriendRequest(ctx context.Context, userID string) error
	Friends(ctx context.Context) ([]domain.Identity, error)
	Conversations(ctx context.Context) ([]domain.Conversation, error)
	OpenConversation(ctx context.Context, peerID string) (domain.Conversation, error)
	SearchUsers(ctx context.Context, query string) ([]domain.Identity, error)
}

// Session owns every piece of real-time state for one signed-in identity.
// Nothing in it outlives the session: teardown closes the connection, waits for
// in-flight fetches and resets all components.
type Session struct {
	self    domain.Identity
	api     API
	logger  *slog.Logger
	metrics *metrics.Metrics

	channel    *channel.Manager
	dispatcher *events.Dispatcher
	presence   *presence.Tracker
	unread     *unread.Ledger
	inbox      *friendreq.Inbox
	rooms      *room.Coordinator
	convs      *conversations.List
	notices    *notice.Board

	ctx    context.Context
	cancel context.CancelFunc
	live   atomic.Bool
	wg     sync.WaitGroup
}

func newSession(self domain.Identity, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cfg.Logger.With("user_id", self.ID)

	s := &Session{
		self:     self,
		api:      cfg.API,
		logger:   logger,
		metrics:  cfg.Metrics,
		presence: presence.NewTracker(),
		inbox:    friendreq.NewInbox(),
		convs:    conversations.NewList(self.ID),
		notices:  notice.NewBoard(cfg.NoticeCapacity),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.dispatcher = events.NewDispatcher(events.Handlers{
		Presence:      s.onPresence,
		Notification:  s.onNotification,
		Message:       s.onMessage,
		FriendRequest: s.onFriendRequest,
	}, logger)
	s.dispatcher.Observe(func(name events.Name, outcome string) {
		s.metrics.Frame(string(name), outcome)
	})

	s.channel = channel.NewManager(cfg.Dialer, s.handleFrame, channel.Options{
		DialTimeout: cfg.DialTimeout,
		OnState:     s.onChannelState,
		Logger:      logger,
		Metrics:     cfg.Metrics,
	})

	s.rooms = room.NewCoordinator(s.channel, nil, logger)
	s.unread = unread.NewLedger(s.rooms)
	s.rooms.SetClearer(s.unread)

	s.unread.OnChange(s.metrics.SetUnread)
	s.inbox.OnChange(s.metrics.SetPending)
	return s
}

// Self returns the session's identity.
func (s *Session) Self() domain.Identity { return s.self }

// Live reports whether the session has not been torn down.
func (s *Session) Live() bool { return s.live.Load() }

// begin marks the session live and launches the snapshot fetches. It does not
// block.
func (s *Session) begin() {
	s.live.Store(true)

	// Tokens are taken before the connection opens so every push counts as newer.
	reqTok := s.inbox.BeginRefresh()
	convTok := s.convs.BeginRefresh()
	s.goFetch(func(ctx context.Context) { _ = s.refreshFriendRequests(ctx, reqTok) })
	s.goFetch(func(ctx context.Context) { _ = s.refreshConversations(ctx, convTok) })
}

// connect opens the channel connection. The attempt is abandoned as soon as
// the session is torn down. A connect failure leaves the session usable
// without real-time updates.
func (s *Session) connect(ctx context.Context) error {
	if !s.live.Load() {
		return ErrSessionEnded
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	return s.channel.Open(ctx, s.self.ID)
}

func (s *Session) teardown(ctx context.Context) {
	if !s.live.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	if err := s.channel.Close(ctx); err != nil {
		s.logger.Warn("Channel close incomplete", "error", err)
	}
	s.wg.Wait()

	s.rooms.Reset()
	s.unread.Reset()
	s.inbox.Reset()
	s.convs.Reset()
	s.presence.Reset()
	s.notices.Reset()
	s.metrics.SetOnline(0)
	s.logger.Info("Real-time session torn down")
}

func (s *Session) goFetch(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Session) handleFrame(raw []byte) {
	if !s.live.Load() {
		return
	}
	s.dispatcher.HandleFrame(raw)
}

func (s *Session) onChannelState(state channel.State, err error) {
	if !s.live.Load() {
		return
	}
	switch state {
	case channel.StateErrored:
		s.notices.Post(notice.LevelError, "Real-time updates are unavailable")
	case channel.StateClosed:
		if err != nil {
			s.notices.Post(notice.LevelError, "Lost connection to real-time updates")
		}
	}
}

func (s *Session) onPresence(e events.Presence) {
	s.presence.Replace(e.UserIDs)
	s.metrics.SetOnline(s.presence.Len())
}

func (s *Session) onNotification(e events.Notification) {
	if e.SenderID != "" && e.SenderID == s.self.ID {
		return
	}
	if s.unread.RecordInbound(e.ConversationID) {
		s.logger.Debug("Unread message", "conversation_id", e.ConversationID)
	}
}

func (s *Session) onMessage(e events.MessageEvent) {
	created, _ := s.convs.ApplyMessage(e.Message)
	if created {
		s.logger.Debug("Conversation synthesized from message", "conversation_id", e.Message.ConversationID)
	}
}

func (s *Session) onFriendRequest(e events.FriendRequestEvent) {
	if !s.inbox.Push(e.Request) {
		return
	}
	s.notices.Post(notice.LevelInfo, fmt.Sprintf("New friend request from %s", e.Request.Sender.DisplayName()))
}

// RefreshFriendRequests replaces the inbox with the authoritative pending list,
// keeping requests pushed while the fetch was in flight.
func (s *Session) RefreshFriendRequests(ctx context.Context) error {
	return s.refreshFriendRequests(ctx, s.inbox.BeginRefresh())
}

func (s *Session) refreshFriendRequests(ctx context.Context, tok friendreq.RefreshToken) error {
	reqs, err := s.api.PendingFriendRequests(ctx)
	s.metrics.Snapshot("friend_requests", err)
	if !s.live.Load() {
		return ErrSessionEnded
	}
	if err != nil {
		s.fetchFailed("friend requests", err)
		return fmt.Errorf("fetch pending friend requests: %w", err)
	}
	s.inbox.ApplySnapshot(tok, reqs)
	return nil
}

// RefreshConversations replaces the conversation list with the authoritative
// snapshot, keeping messages applied while the fetch was in flight.
func (s *Session) RefreshConversations(ctx context.Context) error {
	return s.refreshConversations(ctx, s.convs.BeginRefresh())
}

func (s *Session) refreshConversations(ctx context.Context, tok conversations.RefreshToken) error {
	convs, err := s.api.Conversations(ctx)
	s.metrics.Snapshot("conversations", err)
	if !s.live.Load() {
		return ErrSessionEnded
	}
	if err != nil {
		s.fetchFailed("conversations", err)
		return fmt.Errorf("fetch conversations: %w", err)
	}
	s.convs.ApplySnapshot(tok, convs)
	return nil
}

func (s *Session) fetchFailed(what string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("Snapshot fetch failed", "resource", what, "error", err)
	s.notices.Post(notice.LevelError, "Could not load "+what)
}

// JoinRoom makes conversationID the joined room and clears its unread count.
// The room is joined locally even when the connection is down.
func (s *Session) JoinRoom(ctx context.Context, conversationID string) error {
	if !s.live.Load() {
		return ErrSessionEnded
	}
	err := s.rooms.Join(ctx, conversationID)
	if errors.Is(err, channel.ErrNotOpen) {
		return nil
	}
	return err
}

// LeaveRoom leaves the joined room, if any.
func (s *Session) LeaveRoom(ctx context.Context) error {
	if !s.live.Load() {
		return ErrSessionEnded
	}
	err := s.rooms.Leave(ctx)
	if errors.Is(err, channel.ErrNotOpen) {
		return nil
	}
	return err
}

// AcknowledgeUnread clears the unread count of conversationID without joining it.
func (s *Session) AcknowledgeUnread(conversationID string) {
	s.unread.Clear(conversationID)
}

// OpenConversation creates or fetches the conversation with peerID, merges it
// into the list and joins its room.
func (s *Session) OpenConversation(ctx context.Context, peerID string) (domain.Conversation, error) {
	if !s.live.Load() {
		return domain.Conversation{}, ErrSessionEnded
	}
	conv, err := s.api.OpenConversation(ctx, peerID)
	if err != nil {
		s.notices.Post(notice.LevelError, "Could not start conversation")
		return domain.Conversation{}, fmt.Errorf("open conversation: %w", err)
	}
	if !s.live.Load() {
		return domain.Conversation{}, ErrSessionEnded
	}
	s.convs.Upsert(conv)
	if err := s.JoinRoom(ctx, conv.ID); err != nil {
		s.logger.Warn("Joined conversation without announcement", "conversation_id", conv.ID, "error", err)
	}
	if merged, ok := s.convs.Get(conv.ID); ok {
		return merged, nil
	}
	return conv, nil
}

// VisitFriendRequests acknowledges the friend-request badge and reloads the
// authoritative pending list.
func (s *Session) VisitFriendRequests(ctx context.Context) ([]domain.FriendRequest, error) {
	if !s.live.Load() {
		return nil, ErrSessionEnded
	}
	s.inbox.ClearAll()
	if err := s.RefreshFriendRequests(ctx); err != nil {
		return s.inbox.Pending(), err
	}
	return s.inbox.Pending(), nil
}

// RespondToFriendRequest accepts or declines a request and drops it from the inbox.
func (s *Session) RespondToFriendRequest(ctx context.Context, requestID string, response domain.FriendRequestStatus) error {
	if !s.live.Load() {
		return ErrSessionEnded
	}
	if err := s.api.RespondFriendRequest(ctx, requestID, response); err != nil {
		s.notices.Post(notice.LevelError, "Could not respond to friend request")
		return fmt.Errorf("respond to friend request: %w", err)
	}
	s.inbox.Remove(requestID)
	s.notices.Post(notice.LevelInfo, "Friend request "+string(response))
	return nil
}

// SendFriendRequest sends a friend request to userID.
func (s *Session) SendFriendRequest(ctx context.Context, userID string) error {
	if !s.live.Load() {
		return ErrSessionEnded
	}
	if userID == s.self.ID {
		return fmt.Errorf("send friend request: cannot befriend yourself")
	}
	if err := s.api.SendFriendRequest(ctx, userID); err != nil {
		s.notices.Post(notice.LevelError, "Could not send friend request")
		return fmt.Errorf("send friend request: %w", err)
	}
	return nil
}

// Friend is a friend annotated with presence.
type Friend struct {
	domain.Identity
	Online bool `json:"online"`
}

// Friends lists friends with their current presence.
func (s *Session) Friends(ctx context.Context) ([]Friend, error) {
	if !s.live.Load() {
		return nil, ErrSessionEnded
	}
	ids, err := s.api.Friends(ctx)
	s.metrics.Snapshot("friends", err)
	if err != nil {
		s.fetchFailed("friends", err)
		return nil, fmt.Errorf("fetch friends: %w", err)
	}
	out := make([]Friend, len(ids))
	for i, id := range ids {
		out[i] = Friend{Identity: id, Online: s.presence.IsOnline(id.ID)}
	}
	return out, nil
}

// SearchUsers finds users by name, excluding the session's own identity.
func (s *Session) SearchUsers(ctx context.Context, query string) ([]domain.Identity, error) {
	if !s.live.Load() {
		return nil, ErrSessionEnded
	}
	users, err := s.api.SearchUsers(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := users[:0]
	for _, u := range users {
		if u.ID != s.self.ID {
			out = append(out, u)
		}
	}
	return out, nil
}

// Reconnect reopens a closed or errored connection and re-joins the last room.
// It does nothing while the connection is open.
func (s *Session) Reconnect(ctx context.Context) error {
	if !s.live.Load() {
		return ErrSessionEnded
	}
	if s.channel.State() == channel.StateOpen {
		return nil
	}
	if err := s.connect(ctx); err != nil {
		return err
	}
	roomID, err := s.rooms.Rejoin(ctx)
	if err != nil {
		return fmt.Errorf("rejoin room %s: %w", roomID, err)
	}
	s.logger.Info("Reconnected", "conversation_id", roomID)
	return nil
}

// DismissNotice removes a notice by id.
func (s *Session) DismissNotice(id string) bool {
	return s.notices.Dismiss(id)
}
