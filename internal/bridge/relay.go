package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/parlant"
)

// SendMessage appends one customer message event to the session. The text is
// trimmed and truncated; the returned string is what was actually sent.
// The append is attempted once.
func (s *Service) SendMessage(ctx context.Context, clientID, sessionID, text string) (string, error) {
	if err := checkLimit(s.eventLimiter, clientID); err != nil {
		return "", err
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", invalid("session id is required")
	}
	msg := truncateRunes(strings.TrimSpace(text), s.messageMaxLength)
	if msg == "" {
		return "", invalid("message cannot be empty")
	}

	_, err := s.platform.CreateEvent(ctx, sessionID, parlant.CreateEventParams{
		Kind:    domain.EventKindMessage,
		Source:  domain.EventSourceCustomer,
		Message: msg,
	})
	if err != nil {
		if errors.Is(err, parlant.ErrNotConfigured) {
			return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		slog.Error("message relay failed", "session_id", sessionID, "client_id", clientID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	slog.Debug("message relayed", "session_id", sessionID, "length", len([]rune(msg)))
	return msg, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
