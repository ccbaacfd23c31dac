package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/parlant"
)

// PollResult is one poll's outcome. TimedOut marks an elapsed upstream wait,
// which is not a failure.
type PollResult struct {
	Events   []domain.Event
	TimedOut bool
}

// PollEvents returns events with offset >= minOffset, waiting up to wait for
// new ones. wait is clamped to [0, MaxWait] and a negative minOffset reads
// from the start.
func (s *Service) PollEvents(ctx context.Context, clientID, sessionID string, minOffset int64, wait time.Duration) (PollResult, error) {
	if err := checkLimit(s.eventLimiter, clientID); err != nil {
		return PollResult{}, err
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return PollResult{}, invalid("session id is required")
	}
	if minOffset < 0 {
		minOffset = 0
	}
	wait = clampWait(wait, s.maxWait)

	raw, err := s.platform.ListEvents(ctx, sessionID, parlant.ListEventsParams{
		MinOffset:   minOffset,
		WaitForData: wait,
	})
	if err != nil {
		if errors.Is(err, parlant.ErrNotConfigured) {
			return PollResult{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if parlant.IsTimeout(err) {
			slog.Debug("poll wait elapsed", "session_id", sessionID, "min_offset", minOffset)
			return PollResult{Events: []domain.Event{}, TimedOut: true}, nil
		}
		slog.Error("event poll failed", "session_id", sessionID, "client_id", clientID, "error", err)
		return PollResult{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	events := make([]domain.Event, 0, len(raw))
	for _, e := range raw {
		events = append(events, e.Normalize())
	}
	return PollResult{Events: events}, nil
}

func clampWait(wait, ceiling time.Duration) time.Duration {
	if wait < 0 {
		return 0
	}
	if wait > ceiling {
		return ceiling
	}
	return wait
}
