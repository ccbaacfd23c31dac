package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/curhatin/companion/internal/bridge"
	"github.com/curhatin/companion/internal/chat"
	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/identity"
)

const (
	streamReadLimit    = 64 << 10
	streamWriteTimeout = 5 * time.Second
)

// inProcessBackend runs the widget loop against the gateway directly,
// attributing every call to the connection's client.
type inProcessBackend struct {
	gateway   Gateway
	clientID  string
	visitorID string
}

func (b *inProcessBackend) CreateSession(ctx context.Context, lang domain.Language, token string) (*domain.Session, error) {
	return b.gateway.CreateSession(ctx, b.clientID, bridge.CreateSessionRequest{
		Language:          string(lang),
		VerificationToken: token,
		VisitorID:         b.visitorID,
	})
}

func (b *inProcessBackend) SendMessage(ctx context.Context, sessionID, text string) error {
	_, err := b.gateway.SendMessage(ctx, b.clientID, sessionID, text)
	return backendError(err)
}

func (b *inProcessBackend) PollEvents(ctx context.Context, sessionID string, minOffset int64, wait time.Duration) (chat.Batch, error) {
	res, err := b.gateway.PollEvents(ctx, b.clientID, sessionID, minOffset, wait)
	if err != nil {
		return chat.Batch{}, backendError(err)
	}
	return chat.Batch{Events: res.Events, TimedOut: res.TimedOut}, nil
}

// backendError hands throttling to the loop the way the HTTP surface does,
// as a 429 carrying Retry-After.
func backendError(err error) error {
	var limited *bridge.RateLimitError
	if !errors.As(err, &limited) {
		return err
	}
	return &chat.APIError{
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimit,
		Title:      "Rate limit exceeded",
		Message:    limited.Error(),
		RetryAfter: time.Duration(limited.RetryAfterSeconds()) * time.Second,
	}
}

// StreamHandler serves the chat loop over a WebSocket: the server polls on
// the visitor's behalf and pushes each agent message as it arrives.
type StreamHandler struct {
	gateway        Gateway
	streams        *StreamRegistry
	turnCfg        chat.TurnConfig
	allowedOrigins []string
	isDev          bool
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(gateway Gateway, streams *StreamRegistry, turnCfg chat.TurnConfig, allowedOrigins []string, isDev bool) *StreamHandler {
	return &StreamHandler{
		gateway:        gateway,
		streams:        streams,
		turnCfg:        turnCfg,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// clientFrame is sent by the browser.
type clientFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`
	Token    string `json:"token,omitempty"`
}

// serverFrame is pushed to the browser.
type serverFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Completed *bool  `json:"completed,omitempty"`
}

// streamConn is one accepted stream and the conversation it drives.
type streamConn struct {
	h       *StreamHandler
	ws      *websocket.Conn
	backend *inProcessBackend
	logger  *slog.Logger

	mu   sync.Mutex
	conv *chat.Conversation
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := identity.ClientIDFromContext(r.Context())
	visitorID := identity.VisitorIDFromContext(r.Context())
	owner := visitorID
	if owner == "" {
		owner = clientID
	}

	if !h.checkOrigin(r) {
		Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept chat stream", "error", err, "client_id", clientID)
		return
	}
	ws.SetReadLimit(streamReadLimit)

	streamID := h.streams.Register(owner, ws)
	defer h.streams.Unregister(owner, streamID)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("failed to close chat stream", "error", closeErr, "stream_id", streamID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sc := &streamConn{
		h:       h,
		ws:      ws,
		backend: &inProcessBackend{gateway: h.gateway, clientID: clientID, visitorID: visitorID},
		logger:  slog.Default().With("stream_id", streamID, "client_id", clientID),
	}
	defer sc.close()

	q := r.URL.Query()
	if lang := q.Get("language"); lang != "" {
		if parsed, ok := domain.ParseLanguage(lang); ok {
			sc.conversation(parsed, q.Get("token"))
		}
	}

	sc.logger.Info("chat stream opened")
	var turns sync.WaitGroup
	sc.readLoop(ctx, &turns)
	cancel()
	turns.Wait()
	sc.logger.Info("chat stream ended")
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("chat stream origin rejected", "origin", origin)
	return false
}

func (sc *streamConn) readLoop(ctx context.Context, turns *sync.WaitGroup) {
	for {
		_, message, err := sc.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				sc.logger.Debug("chat stream closed by client")
			} else {
				sc.logger.Warn("chat stream read error", "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			sc.write(ctx, serverFrame{Type: "error", Content: "invalid frame"})
			continue
		}

		switch frame.Type {
		case "ping":
			sc.write(ctx, serverFrame{Type: "pong"})
		case "start":
			sc.start(ctx, frame)
		case "message":
			conv := sc.current()
			if conv == nil {
				conv = sc.conversation(domain.LanguageIndonesian, frame.Token)
			} else if frame.Token != "" {
				conv.SetVerificationToken(frame.Token)
			}
			turns.Add(1)
			go func() {
				defer turns.Done()
				sc.turn(ctx, conv, frame.Content)
			}()
		default:
			sc.write(ctx, serverFrame{Type: "error", Content: "unknown frame type"})
		}
	}
}

// start opens (or reopens, on a language change) the conversation and sends
// the greeting.
func (sc *streamConn) start(ctx context.Context, frame clientFrame) {
	lang := domain.LanguageIndonesian
	if raw := strings.TrimSpace(frame.Language); raw != "" {
		parsed, ok := domain.ParseLanguage(raw)
		if !ok {
			parsed, ok = chat.ParseLanguageSelection(raw)
		}
		if !ok {
			sc.write(ctx, serverFrame{Type: "error", Content: chat.InvalidSelection})
			return
		}
		lang = parsed
	}

	conv := sc.current()
	if conv == nil || conv.Language() != lang {
		conv = sc.conversation(lang, frame.Token)
	} else if frame.Token != "" {
		conv.SetVerificationToken(frame.Token)
	}

	text, err := conv.Start(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		sc.logger.Warn("chat stream session setup failed", "language", lang, "error", err)
		sc.write(ctx, serverFrame{Type: "error", Content: text})
		return
	}
	sc.write(ctx, serverFrame{Type: "greeting", Content: text})
}

func (sc *streamConn) turn(ctx context.Context, conv *chat.Conversation, text string) {
	res, err := conv.Send(ctx, text, func(msg string) {
		sc.write(ctx, serverFrame{Type: "message", Content: msg})
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, chat.ErrClosed) {
		// Superseded by a newer message or the stream is going away.
		return
	}
	completed := err == nil && res.Completed
	sc.write(ctx, serverFrame{Type: "turn_end", Completed: &completed})
}

// conversation replaces the current conversation with a fresh one.
func (sc *streamConn) conversation(lang domain.Language, token string) *chat.Conversation {
	conv := chat.NewConversation(sc.backend, lang,
		chat.WithTurnConfig(sc.h.turnCfg),
		chat.WithLogger(sc.logger),
		chat.WithVerificationToken(token),
	)

	sc.mu.Lock()
	prev := sc.conv
	sc.conv = conv
	sc.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return conv
}

func (sc *streamConn) current() *chat.Conversation {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conv
}

func (sc *streamConn) close() {
	if conv := sc.current(); conv != nil {
		conv.Close()
	}
}

func (sc *streamConn) write(ctx context.Context, f serverFrame) {
	if ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		sc.logger.Error("failed to encode stream frame", "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := sc.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		sc.logger.Debug("chat stream write error", "error", err)
	}
}
