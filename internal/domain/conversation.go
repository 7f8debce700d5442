package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Message is an immutable chat message owned by its conversation.
//
// On the wire the conversation is either a bare id or an object carrying the
// id and participants; Participants holds the latter when present.
type Message struct {
	ID             string
	ConversationID string
	Participants   []Identity
	Sender         Identity
	Content        string
	CreatedAt      time.Time
}

type messageWire struct {
	ID           string          `json:"_id"`
	Conversation json.RawMessage `json:"conversation"`
	Sender       Identity        `json:"sender"`
	Content      string          `json:"content"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type conversationRef struct {
	ID           string     `json:"_id"`
	Participants []Identity `json:"participants,omitempty"`
}

// UnmarshalJSON accepts both forms of the conversation field.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:        w.ID,
		Sender:    w.Sender,
		Content:   w.Content,
		CreatedAt: w.CreatedAt,
	}

	raw := bytes.TrimSpace(w.Conversation)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &m.ConversationID); err != nil {
			return fmt.Errorf("conversation id: %w", err)
		}
	default:
		var ref conversationRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			return fmt.Errorf("conversation: %w", err)
		}
		m.ConversationID = ref.ID
		m.Participants = ref.Participants
	}
	return nil
}

// MarshalJSON always writes the object form of the conversation field.
func (m Message) MarshalJSON() ([]byte, error) {
	conv, err := json.Marshal(conversationRef{ID: m.ConversationID, Participants: m.Participants})
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageWire{
		ID:           m.ID,
		Conversation: conv,
		Sender:       m.Sender,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	})
}

// Conversation is a two-party thread ordered by UpdatedAt in the client list.
type Conversation struct {
	ID           string     `json:"_id"`
	Participants []Identity `json:"participants"`
	LastMessage  *Message   `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// OtherParticipant returns the first participant that is not selfID.
func (c *Conversation) OtherParticipant(selfID string) (Identity, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return Identity{}, false
}

// Clone returns a deep copy so callers never share slices with the owner.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Participants = append([]Identity(nil), c.Participants...)
	if c.LastMessage != nil {
		msg := *c.LastMessage
		msg.Participants = append([]Identity(nil), c.LastMessage.Participants...)
		out.LastMessage = &msg
	}
	return out
}
