// Package bridge mediates between the chat widget and the conversational-agent
// platform: it opens sessions, relays customer messages and long-polls events.
package bridge

import (
	"context"
	"time"

	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/parlant"
	"github.com/curhatin/companion/internal/ratelimit"
)

const (
	// DefaultMaxWait caps how long a poll may block upstream.
	DefaultMaxWait = 30 * time.Second
	// DefaultMessageMaxLength caps a relayed message, in characters.
	DefaultMessageMaxLength = 2000
)

// Platform is the subset of the platform client the bridge uses.
type Platform interface {
	CreateSession(ctx context.Context, p parlant.CreateSessionParams) (*parlant.SessionResource, error)
	CreateEvent(ctx context.Context, sessionID string, p parlant.CreateEventParams) (*parlant.EventResource, error)
	ListEvents(ctx context.Context, sessionID string, p parlant.ListEventsParams) ([]parlant.EventResource, error)
}

// Verifier checks bot-challenge tokens.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// SessionRecorder persists created sessions. Failures never fail creation.
type SessionRecorder interface {
	RecordSession(ctx context.Context, s *domain.Session) error
}

// Limiter throttles requests per client identifier.
type Limiter interface {
	Check(id string) ratelimit.Decision
}

// Config tunes the bridge.
type Config struct {
	AgentIDs         map[domain.Language]string
	MaxWait          time.Duration
	MessageMaxLength int
}

// Service implements session creation, message relay and event polling.
type Service struct {
	platform       Platform
	verifier       Verifier
	recorder       SessionRecorder
	sessionLimiter Limiter
	eventLimiter   Limiter

	agentIDs         map[domain.Language]string
	maxWait          time.Duration
	messageMaxLength int
	now              func() time.Time
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Platform       Platform
	Verifier       Verifier
	Recorder       SessionRecorder
	SessionLimiter Limiter
	EventLimiter   Limiter
}

// NewService creates a bridge service. Recorder may be nil. MaxWait never
// exceeds DefaultMaxWait.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.MaxWait <= 0 || cfg.MaxWait > DefaultMaxWait {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.MessageMaxLength <= 0 {
		cfg.MessageMaxLength = DefaultMessageMaxLength
	}
	ids := make(map[domain.Language]string, len(cfg.AgentIDs))
	for lang, id := range cfg.AgentIDs {
		ids[lang] = id
	}
	return &Service{
		platform:         deps.Platform,
		verifier:         deps.Verifier,
		recorder:         deps.Recorder,
		sessionLimiter:   deps.SessionLimiter,
		eventLimiter:     deps.EventLimiter,
		agentIDs:         ids,
		maxWait:          cfg.MaxWait,
		messageMaxLength: cfg.MessageMaxLength,
		now:              time.Now,
	}
}

// MaxWait returns the poll wait ceiling.
func (s *Service) MaxWait() time.Duration {
	return s.maxWait
}

// checkLimit consults l for clientID.
func checkLimit(l Limiter, clientID string) error {
	if l == nil {
		return nil
	}
	d := l.Check(clientID)
	if d.Allowed {
		return nil
	}
	return &RateLimitError{RetryAfter: d.RetryAfter}
}
