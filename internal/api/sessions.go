package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/curhatin/companion/internal/bridge"
	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/identity"
	"github.com/go-chi/chi/v5"
)

const defaultWaitSeconds = 30

// SessionHandler serves session creation, message relay and event polling.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/parlant/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Post("/{sessionID}/events", h.SendMessage)
		r.Get("/{sessionID}/events", h.PollEvents)
	})
}

type createSessionRequest struct {
	Language          string `json:"language"`
	TurnstileToken    string `json:"turnstileToken"`
	VerificationToken string `json:"verificationToken"`
	CustomerID        string `json:"customerId"`
	Title             string `json:"title"`
}

type sessionResponse struct {
	SessionID  string     `json:"sessionId"`
	AgentID    string     `json:"agentId"`
	CustomerID string     `json:"customerId"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// CreateSession opens a platform session for the widget.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	token := req.TurnstileToken
	if token == "" {
		token = req.VerificationToken
	}

	ctx := r.Context()
	session, err := h.gateway.CreateSession(ctx, identity.ClientIDFromContext(ctx), bridge.CreateSessionRequest{
		Language:          req.Language,
		VerificationToken: token,
		CustomerID:        req.CustomerID,
		Title:             req.Title,
		VisitorID:         identity.VisitorIDFromContext(ctx),
	})
	if err != nil {
		writeError(w, err, "Failed to create session")
		return
	}

	JSON(w, http.StatusOK, toSessionResponse(session))
}

func toSessionResponse(s *domain.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:  s.ID,
		AgentID:    s.AgentID,
		CustomerID: s.CustomerID,
	}
	if s.HasCreationTime() {
		created := s.CreatedAt.UTC()
		resp.CreatedAt = &created
	}
	return resp
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage relays one customer message into the session.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.gateway.SendMessage(ctx, identity.ClientIDFromContext(ctx), sessionID, req.Message); err != nil {
		writeError(w, err, "Failed to send message")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Message sent successfully",
	})
}

type eventsResponse struct {
	Events  []domain.Event `json:"events"`
	Count   int            `json:"count"`
	Timeout bool           `json:"timeout,omitempty"`
}

// PollEvents long-polls the session for events at or after minOffset.
func (h *SessionHandler) PollEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minOffset := parseInt(q.Get("minOffset"), 0)
	waitSecs := parseInt(q.Get("waitForData"), defaultWaitSeconds)
	if maxSecs := int64(h.gateway.MaxWait() / time.Second); waitSecs > maxSecs {
		waitSecs = maxSecs
	}
	if waitSecs < 0 {
		waitSecs = 0
	}
	wait := time.Duration(waitSecs) * time.Second

	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	res, err := h.gateway.PollEvents(ctx, identity.ClientIDFromContext(ctx), sessionID, minOffset, wait)
	if err != nil {
		writeError(w, err, "Failed to poll events")
		return
	}

	events := res.Events
	if events == nil {
		events = []domain.Event{}
	}
	if res.TimedOut {
		w.Header().Set("X-Parlant-Timeout", "1")
		JSON(w, http.StatusOK, eventsResponse{Events: events, Count: 0, Timeout: true})
		return
	}

	slog.Debug("returning events", "session_id", sessionID, "offset", minOffset, "count", len(events))
	JSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

// parseInt reads a leading integer the way the widget's query strings are
// written, falling back to def when none is present.
func parseInt(raw string, def int64) int64 {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && (raw[end] >= '0' && raw[end] <= '9' || end == 0 && raw[end] == '-') {
		end++
	}
	n, err := strconv.ParseInt(raw[:end], 10, 64)
	if err != nil {
		return def
	}
	return n
}
