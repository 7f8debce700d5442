// Package domain contains core domain types for the chatsync client.
package domain

import "time"

// Identity is a user as seen by the real-time layer.
// It is immutable once fetched and owned by the session provider.
type Identity struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"profilePictureUrl,omitempty"`
}

// DisplayName returns the full name when set, the username otherwise.
func (i Identity) DisplayName() string {
	if i.FullName != "" {
		return i.FullName
	}
	return i.Username
}

// Credentials is a signed-in identity plus the bearer token issued for it.
type Credentials struct {
	Identity
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"-"`
}

// Valid reports whether the credentials carry both an identity and a token.
func (c *Credentials) Valid() bool {
	return c != nil && c.ID != "" && c.Token != ""
}

// Expired returns true if the credentials were issued longer than ttl ago.
// A zero ttl never expires.
func (c *Credentials) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || c.IssuedAt.IsZero() {
		return false
	}
	return now.Sub(c.IssuedAt) > ttl
}
