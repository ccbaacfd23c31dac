// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/curhatin/companion/internal/domain"
)

// Repository persists session records and wishlist signups.
type Repository interface {
	// RecordSession stores a created session. Recording the same id twice
	// keeps the first record.
	RecordSession(ctx context.Context, s *domain.Session) error

	// PruneSessions removes session records older than ttl.
	PruneSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// SaveWishlistEntry stores a signup.
	SaveWishlistEntry(ctx context.Context, e *domain.WishlistEntry) error

	// PendingWishlistEntries returns up to limit signups not yet forwarded,
	// oldest first.
	PendingWishlistEntries(ctx context.Context, limit int) ([]*domain.WishlistEntry, error)

	// MarkWishlistForwarded records that a signup reached the webhook.
	MarkWishlistForwarded(ctx context.Context, id string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
