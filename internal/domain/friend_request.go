package domain

import "time"

// FriendRequestStatus is the lifecycle state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// Valid reports whether s is a known status.
func (s FriendRequestStatus) Valid() bool {
	switch s {
	case FriendRequestPending, FriendRequestAccepted, FriendRequestDeclined:
		return true
	}
	return false
}

// FriendRequest is an incoming request addressed to the current identity.
type FriendRequest struct {
	ID        string              `json:"_id"`
	Sender    Identity            `json:"sender"`
	Status    FriendRequestStatus `json:"status"`
	CreatedAt time.Time           `json:"createdAt,omitempty"`
}

// IsPending treats a missing status as pending, matching the pending-list endpoint.
func (r FriendRequest) IsPending() bool {
	return r.Status == "" || r.Status == FriendRequestPending
}
