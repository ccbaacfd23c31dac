package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/parlant"
	"github.com/curhatin/companion/internal/turnstile"
)

const (
	// DefaultCustomerID is used when the widget does not identify the visitor.
	DefaultCustomerID = "guest"

	titleLayout = "2006-01-02 15:04:05"
)

// CreateSessionRequest is a widget request to open a conversation.
type CreateSessionRequest struct {
	Language          string
	VerificationToken string
	CustomerID        string
	Title             string
	VisitorID         string
}

// CreateSession verifies the caller and opens a platform session for the
// requested language. Validation runs before any remote call.
func (s *Service) CreateSession(ctx context.Context, clientID string, req CreateSessionRequest) (*domain.Session, error) {
	if err := checkLimit(s.sessionLimiter, clientID); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(req.VerificationToken)
	if token == "" {
		return nil, invalid("verification token is required")
	}
	lang, ok := domain.ParseLanguage(req.Language)
	if !ok {
		return nil, invalid(`language must be "id" or "en"`)
	}

	if err := s.verify(ctx, clientID, token); err != nil {
		return nil, err
	}

	agentID, ok := s.agentIDs[lang]
	if !ok || agentID == "" {
		slog.Error("no agent configured for language", "language", lang)
		return nil, fmt.Errorf("%w: no agent for language %q", ErrConfiguration, lang)
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		customerID = DefaultCustomerID
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Curhatin Chat Session - " + s.now().UTC().Format(titleLayout)
	}

	res, err := s.platform.CreateSession(ctx, parlant.CreateSessionParams{
		AgentID:    agentID,
		CustomerID: customerID,
		Title:      title,
	})
	if err != nil {
		if errors.Is(err, parlant.ErrNotConfigured) {
			slog.Error("platform url not configured")
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		slog.Error("platform session creation failed", "client_id", clientID, "language", lang, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	session := &domain.Session{
		ID:         res.ID,
		AgentID:    agentID,
		Language:   lang,
		CustomerID: customerID,
		Title:      title,
		ClientID:   clientID,
		VisitorID:  req.VisitorID,
		CreatedAt:  res.CreatedAt(),
	}
	if res.AgentID != "" {
		session.AgentID = res.AgentID
	}
	if res.CustomerID != "" {
		session.CustomerID = res.CustomerID
	}

	if s.recorder != nil {
		if err := s.recorder.RecordSession(ctx, session); err != nil {
			slog.Warn("failed to record session", "session_id", session.ID, "error", err)
		}
	}

	slog.Info("session created", "session_id", session.ID, "client_id", clientID, "language", lang)
	return session, nil
}

// Verify checks a bot-challenge token on behalf of clientID. It is shared
// with the wishlist flow.
func (s *Service) Verify(ctx context.Context, clientID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid("verification token is required")
	}
	return s.verify(ctx, clientID, token)
}

func (s *Service) verify(ctx context.Context, clientID, token string) error {
	ok, err := s.verifier.Verify(ctx, token, clientID)
	if err != nil {
		if errors.Is(err, turnstile.ErrNotConfigured) {
			slog.Error("verification secret not configured")
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		slog.Warn("verification call failed", "client_id", clientID, "error", err)
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if !ok {
		slog.Info("verification rejected", "client_id", clientID)
		return ErrVerificationFailed
	}
	return nil
}
