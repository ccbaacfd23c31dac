package api

import (
	"errors"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/curhatin/companion/internal/bridge"
	"github.com/curhatin/companion/internal/identity"
	"github.com/curhatin/companion/internal/wishlist"
	"github.com/go-chi/chi/v5"
)

// WishlistHandler serves launch-notification signups.
type WishlistHandler struct {
	*Handler
}

// NewWishlistHandler creates a new wishlist handler.
func NewWishlistHandler(base *Handler) *WishlistHandler {
	return &WishlistHandler{Handler: base}
}

// RegisterRoutes registers wishlist routes.
func (h *WishlistHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/wishlist", h.Submit)
}

type wishlistRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	TurnstileToken string `json:"turnstileToken"`
}

type wishlistResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Submit stores a signup and forwards it to the spreadsheet webhook.
func (h *WishlistHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req wishlistRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := decodeBody(r, &req); err != nil {
		JSON(w, http.StatusBadRequest, wishlistResponse{Error: "Invalid JSON body"})
		return
	}

	ctx := r.Context()
	_, err := h.wishlist.Submit(ctx, identity.ClientIDFromContext(ctx), wishlist.SubmitRequest{
		Name:              req.Name,
		Email:             req.Email,
		VerificationToken: req.TurnstileToken,
	})
	if err != nil {
		status, msg := wishlistError(err)
		JSON(w, status, wishlistResponse{Error: msg})
		return
	}

	JSON(w, http.StatusOK, wishlistResponse{Success: true})
}

func wishlistError(err error) (int, string) {
	switch {
	case errors.Is(err, wishlist.ErrInvalidEntry):
		return http.StatusBadRequest, "Name and email are required"
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest, "Turnstile token is required"
	case errdefs.IsPermissionDenied(err):
		return http.StatusForbidden, "Security verification failed"
	case errors.Is(err, wishlist.ErrWebhookNotConfigured), errors.Is(err, bridge.ErrConfiguration):
		return http.StatusInternalServerError, "Server configuration error"
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}
