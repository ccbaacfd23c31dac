// Package chat drives a widget conversation: it opens a session once, relays
// each visitor message and polls until the agent's reply is complete.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/curhatin/companion/internal/domain"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionUnavailable means no session could be created.
	ErrSessionUnavailable = errors.New("chat session unavailable")
	// ErrSendFailed means the visitor's message was not relayed.
	ErrSendFailed = errors.New("message send failed")
	// ErrVerificationPending means no verification token is available yet.
	ErrVerificationPending = errors.New("verification token not available")
	// ErrClosed is returned once the conversation has been closed.
	ErrClosed = errors.New("conversation closed")
)

// Batch is one poll's worth of events.
type Batch struct {
	Events   []domain.Event
	TimedOut bool
}

// Backend is the session surface a conversation drives.
type Backend interface {
	CreateSession(ctx context.Context, lang domain.Language, token string) (*domain.Session, error)
	SendMessage(ctx context.Context, sessionID, text string) error
	PollEvents(ctx context.Context, sessionID string, minOffset int64, wait time.Duration) (Batch, error)
}

// Sink receives each agent message as soon as it is ready for display.
type Sink func(text string)

// State is the lifecycle position of a conversation.
type State int

const (
	StateNoSession State = iota
	StateSessionCreating
	StateSessionReady
	StateSendingMessage
	StatePolling
	StateSessionError
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateSessionCreating:
		return "session_creating"
	case StateSessionReady:
		return "session_ready"
	case StateSendingMessage:
		return "sending_message"
	case StatePolling:
		return "polling"
	case StateSessionError:
		return "session_error"
	default:
		return "unknown"
	}
}

// TurnResult summarises a completed Send.
type TurnResult struct {
	Displayed int
	Completed bool
	Attempts  int
}

// Conversation is one visitor's chat with the agent. It is safe for
// concurrent use; a new Send cancels the turn in flight.
type Conversation struct {
	backend Backend
	lang    domain.Language
	cfg     TurnConfig
	logger  *slog.Logger

	creation singleflight.Group

	mu         sync.Mutex
	token      string
	state      State
	sessionID  string
	cursor     int64
	turnSeq    uint64
	cancelTurn context.CancelFunc
	closed     bool
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithTurnConfig overrides DefaultTurnConfig.
func WithTurnConfig(cfg TurnConfig) Option {
	return func(c *Conversation) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) {
		c.logger = l
	}
}

// WithVerificationToken supplies the bot-challenge token up front.
func WithVerificationToken(token string) Option {
	return func(c *Conversation) {
		c.token = token
	}
}

// NewConversation creates a conversation in lang over backend.
func NewConversation(backend Backend, lang domain.Language, opts ...Option) *Conversation {
	c := &Conversation{
		backend: backend,
		lang:    lang,
		cfg:     DefaultTurnConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetVerificationToken records a token that arrived after construction.
func (c *Conversation) SetVerificationToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

// Language returns the conversation language.
func (c *Conversation) Language() domain.Language {
	return c.lang
}

// Texts returns the localized copy for this conversation.
func (c *Conversation) Texts() Texts {
	return TextsFor(c.lang)
}

// State returns the current lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session id, or "" before one exists.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Cursor returns the next offset this conversation will request.
func (c *Conversation) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Start ensures a session and returns the greeting to show. On failure it
// returns the localized text to show instead, together with the error.
func (c *Conversation) Start(ctx context.Context) (string, error) {
	t := c.Texts()
	if _, err := c.EnsureSession(ctx); err != nil {
		if errors.Is(err, ErrVerificationPending) {
			return t.VerificationPending, err
		}
		return t.SessionSetupFailed, err
	}
	return t.Greeting, nil
}

// EnsureSession returns the session id, creating the session if needed.
// Concurrent callers share one creation, which is not aborted when a single
// caller gives up.
func (c *Conversation) EnsureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.sessionID != "" {
		id := c.sessionID
		c.mu.Unlock()
		return id, nil
	}
	if c.token == "" {
		c.mu.Unlock()
		return "", ErrVerificationPending
	}
	c.mu.Unlock()

	ch := c.creation.DoChan("session", func() (any, error) {
		return c.createSession(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, res.Err)
		}
		return res.Val.(string), nil
	}
}

func (c *Conversation) createSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.sessionID != "" {
		id := c.sessionID
		c.mu.Unlock()
		return id, nil
	}
	token := c.token
	c.state = StateSessionCreating
	c.mu.Unlock()

	if c.cfg.CreateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CreateTimeout)
		defer cancel()
	}

	s, err := c.backend.CreateSession(ctx, c.lang, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateSessionError
		c.logger.Error("session creation failed", "language", c.lang, "error", err)
		return "", err
	}
	c.sessionID = s.ID
	c.cursor = 0
	c.state = StateSessionReady
	c.logger.Info("session ready", "session_id", s.ID, "language", c.lang)
	return s.ID, nil
}

// Send relays text and delivers the agent's reply to sink message by
// message. Setup and relay failures deliver one apology and return an error;
// poll failures never discard what was already shown.
func (c *Conversation) Send(ctx context.Context, text string, sink Sink) (TurnResult, error) {
	t := c.Texts()
	text = strings.TrimSpace(text)
	if text == "" {
		sink(t.EmptyInput)
		return TurnResult{}, nil
	}

	turnCtx, seq, err := c.beginTurn(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	defer c.endTurn(seq)

	sessionID, err := c.EnsureSession(turnCtx)
	if err != nil {
		switch {
		case turnCtx.Err() != nil:
			return TurnResult{}, turnCtx.Err()
		case errors.Is(err, ErrClosed):
			return TurnResult{}, err
		case errors.Is(err, ErrVerificationPending):
			sink(t.VerificationPending)
			return TurnResult{}, err
		}
		sink(t.Apology)
		return TurnResult{}, err
	}

	c.setState(seq, StateSendingMessage)
	if err := c.backend.SendMessage(turnCtx, sessionID, text); err != nil {
		if turnCtx.Err() != nil {
			return TurnResult{}, turnCtx.Err()
		}
		c.setState(seq, StateSessionReady)
		c.logger.Warn("message send failed", "session_id", sessionID, "error", err)
		sink(t.Apology)
		return TurnResult{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	c.setState(seq, StatePolling)
	res := c.pollTurn(turnCtx, sessionID, sink)
	c.setState(seq, StateSessionReady)

	if err := turnCtx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Conversation) pollTurn(ctx context.Context, sessionID string, sink Sink) TurnResult {
	turn := NewTurnState(c.Cursor(), c.cfg)
	deadline := time.Now().Add(c.cfg.Timeout)

	for turn.Attempts < c.cfg.MaxAttempts && time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}

		batch, err := c.backend.PollEvents(ctx, sessionID, turn.Cursor, c.cfg.PollWait)
		turn.Attempts++
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			delay := c.cfg.ErrorDelay
			if wait := retryAfter(err); wait > 0 {
				// Waiting out a throttle does not spend the attempt budget.
				turn.Attempts--
				delay = max(delay, wait)
				c.logger.Info("poll throttled", "session_id", sessionID, "retry_after", wait)
			} else {
				c.logger.Warn("poll failed", "session_id", sessionID, "offset", turn.Cursor, "attempt", turn.Attempts, "error", err)
			}
			delay = min(delay, time.Until(deadline))
			if !sleep(ctx, delay) {
				break
			}
			continue
		}
		if batch.TimedOut {
			if !sleep(ctx, c.cfg.TimeoutDelay) {
				break
			}
			continue
		}

		for _, msg := range turn.Apply(batch.Events) {
			sink(msg)
		}
		c.advanceCursor(turn.Cursor)

		if turn.Complete() {
			return TurnResult{Displayed: len(turn.Displayed), Completed: true, Attempts: turn.Attempts}
		}
		if len(batch.Events) > 0 {
			continue
		}
		if !sleep(ctx, c.cfg.IdleDelay) {
			break
		}
	}

	if len(turn.Displayed) == 0 && ctx.Err() == nil {
		c.logger.Warn("turn ended without an agent reply", "session_id", sessionID, "attempts", turn.Attempts)
	}
	return TurnResult{Displayed: len(turn.Displayed), Attempts: turn.Attempts}
}

// Close cancels any turn in flight. Later calls fail with ErrClosed.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancelTurn != nil {
		c.cancelTurn()
		c.cancelTurn = nil
	}
}

func (c *Conversation) beginTurn(ctx context.Context) (context.Context, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, 0, ErrClosed
	}
	if c.cancelTurn != nil {
		c.cancelTurn()
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.turnSeq++
	c.cancelTurn = cancel
	return turnCtx, c.turnSeq, nil
}

func (c *Conversation) endTurn(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnSeq == seq && c.cancelTurn != nil {
		c.cancelTurn()
		c.cancelTurn = nil
	}
}

// setState only applies while seq is the current turn.
func (c *Conversation) setState(seq uint64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnSeq == seq && c.sessionID != "" {
		c.state = s
	}
}

func (c *Conversation) advanceCursor(next int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next > c.cursor {
		c.cursor = next
	}
}

// retryAfter returns the server's throttling guidance carried by err, or
// zero when err is not a throttling error.
func retryAfter(err error) time.Duration {
	if !errdefs.IsResourceExhausted(err) {
		return 0
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
