// Package store persists signed-in credentials so a session survives restarts.
package store

import (
	"context"
	"time"

	"github.com/ashureev/chatsync/internal/domain"
)

// Repository persists credentials.
type Repository interface {
	// LoadCredentials returns the most recently saved credentials, or nil if none.
	LoadCredentials(ctx context.Context) (*domain.Credentials, error)

	// SaveCredentials stores creds and makes them the most recent.
	SaveCredentials(ctx context.Context, creds *domain.Credentials) error

	// DeleteCredentials removes the credentials for userID.
	DeleteCredentials(ctx context.Context, userID string) error

	// PurgeExpired removes credentials issued more than ttl ago.
	PurgeExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
