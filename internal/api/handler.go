// Package api provides HTTP handlers for the companion API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errhttp"
	"github.com/curhatin/companion/internal/bridge"
	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/wishlist"
)

// Error codes carried in error bodies so the widget can branch on them.
const (
	CodeRateLimit     = "RATE_LIMIT"
	CodeVerification  = "TURNSTILE_FAILED"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeConfiguration = "CONFIGURATION"
	CodeUpstream      = "UPSTREAM"
)

// Gateway is the session surface served over HTTP.
type Gateway interface {
	CreateSession(ctx context.Context, clientID string, req bridge.CreateSessionRequest) (*domain.Session, error)
	SendMessage(ctx context.Context, clientID, sessionID, text string) (string, error)
	PollEvents(ctx context.Context, clientID, sessionID string, minOffset int64, wait time.Duration) (bridge.PollResult, error)
	MaxWait() time.Duration
}

// WishlistService records launch signups.
type WishlistService interface {
	Submit(ctx context.Context, clientID string, req wishlist.SubmitRequest) (*domain.WishlistEntry, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides common handler utilities.
type Handler struct {
	gateway     Gateway
	wishlist    WishlistService
	db          Pinger
	maxBodySize int64
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(gateway Gateway, wl WishlistService, db Pinger, maxBodySize int64) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &Handler{
		gateway:     gateway,
		wishlist:    wl,
		db:          db,
		maxBodySize: maxBodySize,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// writeError maps a service error onto a status code and a generic body.
// failure titles upstream and internal errors for the endpoint at hand.
func writeError(w http.ResponseWriter, err error, failure string) {
	var limited *bridge.RateLimitError
	if errors.As(err, &limited) {
		secs := limited.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		JSON(w, http.StatusTooManyRequests, errorBody{
			Error:   "Rate limit exceeded",
			Message: "Too many requests. Please wait " + strconv.Itoa(secs) + " seconds before trying again.",
			Code:    CodeRateLimit,
		})
		return
	}

	status := errhttp.ToHTTP(err)
	switch {
	case errdefs.IsInvalidArgument(err):
		JSON(w, status, errorBody{Error: "Invalid request", Message: err.Error(), Code: CodeInvalidInput})
	case errdefs.IsPermissionDenied(err):
		JSON(w, status, errorBody{Error: "Security verification failed", Message: "Please refresh and try again", Code: CodeVerification})
	case errors.Is(err, bridge.ErrConfiguration):
		JSON(w, http.StatusInternalServerError, errorBody{Error: "Configuration error", Message: "Server configuration error", Code: CodeConfiguration})
	case errdefs.IsUnavailable(err):
		// The widget treats every upstream failure as a plain 500.
		JSON(w, http.StatusInternalServerError, errorBody{Error: failure, Message: "The chat service is temporarily unavailable", Code: CodeUpstream})
	default:
		slog.Error("unclassified handler error", "error", err)
		JSON(w, http.StatusInternalServerError, errorBody{Error: failure, Message: "Unknown error"})
	}
}

// decodeJSON reads a size-limited JSON body into v.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := decodeBody(r, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: "Request body too large", Code: CodeInvalidInput})
			return false
		}
		JSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body", Message: "Request body must be valid JSON", Code: CodeInvalidInput})
		return false
	}
	return true
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Health reports whether storage is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			slog.Error("health check failed", "error", err)
			JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
