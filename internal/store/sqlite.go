package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/chatsync/internal/domain"
	"github.com/ashureev/chatsync/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	retryAttempts = 3
	retryBase     = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		token TEXT NOT NULL,
		issued_at INTEGER NOT NULL,
		saved_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_saved ON credentials(saved_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadCredentials returns the most recently saved credentials.
func (s *SQLiteStore) LoadCredentials(ctx context.Context) (*domain.Credentials, error) {
	query := `
		SELECT user_id, username, full_name, avatar_url, token, issued_at
		FROM credentials ORDER BY saved_at DESC, rowid DESC LIMIT 1`

	var creds domain.Credentials
	var issuedAt int64
	err := s.db.QueryRowContext(ctx, query).Scan(
		&creds.ID, &creds.Username, &creds.FullName, &creds.AvatarURL,
		&creds.Token, &issuedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan credentials row: %w", err)
	}
	creds.IssuedAt = time.Unix(issuedAt, 0)
	return &creds, nil
}

// SaveCredentials creates or replaces the credentials for creds.ID.
func (s *SQLiteStore) SaveCredentials(ctx context.Context, creds *domain.Credentials) error {
	if !creds.Valid() {
		return fmt.Errorf("save credentials: missing identity or token")
	}
	issued := creds.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}

	query := `
	INSERT INTO credentials (user_id, username, full_name, avatar_url, token, issued_at, saved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		full_name = excluded.full_name,
		avatar_url = excluded.avatar_url,
		token = excluded.token,
		issued_at = excluded.issued_at,
		saved_at = excluded.saved_at`

	return s.write(ctx, "save credentials", func() error {
		_, err := s.db.ExecContext(ctx, query,
			creds.ID, creds.Username, creds.FullName, creds.AvatarURL,
			creds.Token, issued.Unix(), time.Now().UnixNano(),
		)
		return err
	})
}

// DeleteCredentials removes stored credentials for userID.
func (s *SQLiteStore) DeleteCredentials(ctx context.Context, userID string) error {
	return s.write(ctx, "delete credentials", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
		return err
	})
}

// PurgeExpired removes credentials issued before now minus ttl.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	threshold := time.Now().Add(-ttl).Unix()
	var n int64
	err := s.write(ctx, "purge credentials", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE issued_at < ?`, threshold)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := shared.RetryOnConflict(ctx, op, retryAttempts, retryBase, fn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
