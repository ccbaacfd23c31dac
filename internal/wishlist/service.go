// Package wishlist captures launch-notification signups and forwards them to
// the spreadsheet webhook.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/curhatin/companion/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrInvalidEntry means name or email is missing.
	ErrInvalidEntry = errdefs.ErrInvalidArgument.WithMessage("name and email are required")
	// ErrWebhookNotConfigured means no webhook url is set.
	ErrWebhookNotConfigured = errdefs.ErrInternal.WithMessage("wishlist webhook not configured")
)

// Verifier checks a bot-challenge token for clientID.
type Verifier interface {
	Verify(ctx context.Context, clientID, token string) error
}

// Forwarder delivers a signup to its final destination.
type Forwarder interface {
	Configured() bool
	Forward(ctx context.Context, e *domain.WishlistEntry) error
}

// Repository is the persistence the service needs.
type Repository interface {
	SaveWishlistEntry(ctx context.Context, e *domain.WishlistEntry) error
	PendingWishlistEntries(ctx context.Context, limit int) ([]*domain.WishlistEntry, error)
	MarkWishlistForwarded(ctx context.Context, id string) error
}

// SubmitRequest is a signup as posted by the landing page.
type SubmitRequest struct {
	Name              string
	Email             string
	VerificationToken string
}

// Service validates, stores and forwards signups.
type Service struct {
	repo      Repository
	verifier  Verifier
	forwarder Forwarder
	now       func() time.Time
}

// NewService creates a wishlist service.
func NewService(repo Repository, verifier Verifier, forwarder Forwarder) *Service {
	return &Service{repo: repo, verifier: verifier, forwarder: forwarder, now: time.Now}
}

// Submit records a signup. The entry is stored before forwarding, so a
// webhook failure leaves it pending for RetryPending rather than failing the
// request.
func (s *Service) Submit(ctx context.Context, clientID string, req SubmitRequest) (*domain.WishlistEntry, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, ErrInvalidEntry
	}

	if err := s.verifier.Verify(ctx, clientID, req.VerificationToken); err != nil {
		return nil, err
	}
	if !s.forwarder.Configured() {
		slog.Error("wishlist webhook url not configured")
		return nil, ErrWebhookNotConfigured
	}

	entry := &domain.WishlistEntry{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		ClientID:  clientID,
		CreatedAt: s.now(),
	}
	if err := s.repo.SaveWishlistEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("save wishlist entry: %w", err)
	}

	if err := s.forwarder.Forward(ctx, entry); err != nil {
		slog.Warn("wishlist forward failed, will retry", "id", entry.ID, "error", err)
		return entry, nil
	}
	entry.Forwarded = true
	if err := s.repo.MarkWishlistForwarded(ctx, entry.ID); err != nil {
		slog.Warn("failed to mark wishlist entry forwarded", "id", entry.ID, "error", err)
	}

	slog.Info("wishlist signup stored", "id", entry.ID, "forwarded", entry.Forwarded)
	return entry, nil
}

// RetryPending forwards up to limit stored signups that have not reached the
// webhook yet and returns how many were delivered.
func (s *Service) RetryPending(ctx context.Context, limit int) (int, error) {
	if !s.forwarder.Configured() {
		return 0, nil
	}

	pending, err := s.repo.PendingWishlistEntries(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load pending wishlist entries: %w", err)
	}

	delivered := 0
	var errs []error
	for _, e := range pending {
		if err := s.forwarder.Forward(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("forward %s: %w", e.ID, err))
			continue
		}
		if err := s.repo.MarkWishlistForwarded(ctx, e.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}
