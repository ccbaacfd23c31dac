package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/curhatin/companion/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	busyRetries   = 3
	busyBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		language TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL,
		visitor_id TEXT,
		platform_created_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS wishlist_entries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		client_id TEXT NOT NULL,
		forwarded_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wishlist_pending ON wishlist_entries(created_at) WHERE forwarded_at IS NULL;
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RecordSession stores a created session.
func (s *SQLiteStore) RecordSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, agent_id, language, customer_id, title, client_id, visitor_id, platform_created_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO NOTHING`

	var visitorID, platformCreated interface{}
	if sess.VisitorID != "" {
		visitorID = sess.VisitorID
	}
	if sess.HasCreationTime() {
		platformCreated = sess.CreatedAt.Unix()
	}

	return withBusyRetry(ctx, "record session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.ID, sess.AgentID, string(sess.Language), sess.CustomerID, sess.Title,
			sess.ClientID, visitorID, platformCreated, time.Now().Unix(),
		)
		return err
	})
}

// PruneSessions removes session records older than ttl.
func (s *SQLiteStore) PruneSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	var rows int64
	err := withBusyRetry(ctx, "prune sessions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, threshold)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	return rows, err
}

// SaveWishlistEntry stores a signup.
func (s *SQLiteStore) SaveWishlistEntry(ctx context.Context, e *domain.WishlistEntry) error {
	query := `
	INSERT INTO wishlist_entries (id, name, email, client_id, forwarded_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var forwardedAt interface{}
	if e.Forwarded {
		forwardedAt = time.Now().Unix()
	}

	return withBusyRetry(ctx, "save wishlist entry", func() error {
		_, err := s.db.ExecContext(ctx, query, e.ID, e.Name, e.Email, e.ClientID, forwardedAt, e.CreatedAt.Unix())
		return err
	})
}

// PendingWishlistEntries returns signups not yet forwarded, oldest first.
func (s *SQLiteStore) PendingWishlistEntries(ctx context.Context, limit int) ([]*domain.WishlistEntry, error) {
	query := `
		SELECT id, name, email, client_id, created_at
		FROM wishlist_entries WHERE forwarded_at IS NULL
		ORDER BY created_at ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending wishlist entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close wishlist rows", "error", closeErr)
		}
	}()

	var entries []*domain.WishlistEntry
	for rows.Next() {
		var e domain.WishlistEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.ClientID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan wishlist row: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wishlist entries: %w", err)
	}
	return entries, nil
}

// MarkWishlistForwarded records that a signup reached the webhook.
func (s *SQLiteStore) MarkWishlistForwarded(ctx context.Context, id string) error {
	var rows int64
	err := withBusyRetry(ctx, "mark wishlist forwarded", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE wishlist_entries SET forwarded_at = ? WHERE id = ? AND forwarded_at IS NULL`,
			time.Now().Unix(), id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("MarkWishlistForwarded affected 0 rows", "id", id)
	}
	return nil
}

// withBusyRetry runs fn, retrying with exponential backoff while SQLite
// reports lock contention.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsConflictError(err) || i == busyRetries-1 {
			break
		}

		delay := busyBaseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("sqlite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsConflictError reports SQLITE_BUSY or "database is locked" errors, both of
// which are worth retrying.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
