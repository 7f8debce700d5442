package realtime

import (
	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/notice"
)

// ConversationView is a conversation list row as a UI renders it.
type ConversationView struct {
	domain.Conversation
	Peer        domain.Identity `json:"peer"`
	PeerOnline  bool            `json:"peerOnline"`
	Unread      int             `json:"unread"`
	Joined      bool            `json:"joined"`
	Provisional bool            `json:"provisional,omitempty"`
}

// View is a read-only copy of a session's state.
type View struct {
	Self           domain.Identity        `json:"self"`
	Connection     string                 `json:"connection"`
	ConnectionID   string                 `json:"connectionId,omitempty"`
	Online         []string               `json:"online"`
	UnreadTotal    int                    `json:"unreadTotal"`
	Unread         map[string]int         `json:"unread"`
	JoinedRoom     string                 `json:"joinedRoom,omitempty"`
	FriendRequests []domain.FriendRequest `json:"friendRequests"`
	Conversations  []ConversationView     `json:"conversations"`
	Notices        []notice.Notice        `json:"notices"`
}

// View returns a snapshot of the session's state.
func (s *Session) View() View {
	convs := s.convs.Conversations()
	rows := make([]ConversationView, len(convs))
	for i, c := range convs {
		peer, _ := c.OtherParticipant(s.self.ID)
		rows[i] = ConversationView{
			Conversation: c,
			Peer:         peer,
			PeerOnline:   s.presence.IsOnline(peer.ID),
			Unread:       s.unread.Count(c.ID),
			Joined:       s.rooms.IsJoined(c.ID),
			Provisional:  s.convs.Provisional(c.ID),
		}
	}

	return View{
		Self:           s.self,
		Connection:     s.channel.State().String(),
		ConnectionID:   s.channel.ConnectionID(),
		Online:         s.presence.Online(),
		UnreadTotal:    s.unread.Total(),
		Unread:         s.unread.Snapshot(),
		JoinedRoom:     s.rooms.Current(),
		FriendRequests: s.inbox.Pending(),
		Conversations:  rows,
		Notices:        s.notices.List(),
	}
}
