// Package events defines the wire frames exchanged over the channel connection
// and the closed set of inbound event variants.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/chatsync/internal/domain"
)

// Name identifies a frame on the wire.
type Name string

// Outbound frames.
const (
	Setup          Name = "setup"
	DisconnectUser Name = "disconnectUser"
	JoinChat       Name = "joinChat"
	LeaveChat      Name = "leaveChat"
)

// Inbound frames.
const (
	OnlineUsersChanged        Name = "onlineUsersChanged"
	NotificationForNewMessage Name = "notificationForNewMessage"
	MessageReceived           Name = "messageReceived"
	NewFriendRequest          Name = "newFriendRequest"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownEvent = errors.New("unknown event")
)

// Frame is the JSON envelope of every message on the channel connection.
type Frame struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is one of Presence, Notification, MessageEvent or FriendRequestEvent.
type Event interface {
	Name() Name
	sealed()
}

// Presence carries the full roster of online identity ids.
type Presence struct {
	UserIDs []string
}

// Notification signals an inbound message for unread counting.
type Notification struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	SenderID       string `json:"senderId,omitempty"`
}

// MessageEvent carries a full message payload.
type MessageEvent struct {
	Message domain.Message
}

// FriendRequestEvent carries a newly received friend request.
type FriendRequestEvent struct {
	Request domain.FriendRequest
}

func (Presence) Name() Name           { return OnlineUsersChanged }
func (Notification) Name() Name       { return NotificationForNewMessage }
func (MessageEvent) Name() Name       { return MessageReceived }
func (FriendRequestEvent) Name() Name { return NewFriendRequest }

func (Presence) sealed()           {}
func (Notification) sealed()       {}
func (MessageEvent) sealed()       {}
func (FriendRequestEvent) sealed() {}

// Decode parses an inbound frame into its event variant.
// Frames that are not valid JSON or lack required fields return ErrMalformed;
// frames with an unrecognized name return ErrUnknownEvent.
func Decode(raw []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(bytes.TrimSpace(f.Data)) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformed, f.Event)
	}

	switch f.Event {
	case OnlineUsersChanged:
		var ids []string
		if err := json.Unmarshal(f.Data, &ids); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
		}
		return Presence{UserIDs: ids}, nil

	case NotificationForNewMessage:
		var n Notification
		if err := json.Unmarshal(f.Data, &n); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
		}
		if n.ConversationID == "" {
			return nil, fmt.Errorf("%w: %s without conversationId", ErrMalformed, f.Event)
		}
		return n, nil

	case MessageReceived:
		var m domain.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
		}
		if m.ConversationID == "" || m.ID == "" {
			return nil, fmt.Errorf("%w: %s without ids", ErrMalformed, f.Event)
		}
		return MessageEvent{Message: m}, nil

	case NewFriendRequest:
		var r domain.FriendRequest
		if err := json.Unmarshal(f.Data, &r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, f.Event)
		}
		return FriendRequestEvent{Request: r}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
}

// Encode builds a frame for name with payload as data.
func Encode(name Name, payload any) ([]byte, error) {
	if strings.TrimSpace(string(name)) == "" {
		return nil, fmt.Errorf("%w: empty event name", ErrMalformed)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return json.Marshal(Frame{Event: name, Data: data})
}

// EncodeEvent builds the inbound frame for ev, used by the relay side.
func EncodeEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case Presence:
		ids := e.UserIDs
		if ids == nil {
			ids = []string{}
		}
		return Encode(e.Name(), ids)
	case Notification:
		return Encode(e.Name(), e)
	case MessageEvent:
		return Encode(e.Name(), e.Message)
	case FriendRequestEvent:
		return Encode(e.Name(), e.Request)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// DecodeOutbound parses a client frame whose data is a single id string.
func DecodeOutbound(raw []byte) (Name, string, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch f.Event {
	case Setup, DisconnectUser, JoinChat, LeaveChat:
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	var id string
	if err := json.Unmarshal(f.Data, &id); err != nil || id == "" {
		return "", "", fmt.Errorf("%w: %s requires an id", ErrMalformed, f.Event)
	}
	return f.Event, id, nil
}
