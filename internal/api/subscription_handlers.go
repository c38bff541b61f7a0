package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dinefind/dinefind/internal/establishment"
	"github.com/dinefind/dinefind/internal/middleware"
	"github.com/dinefind/dinefind/internal/subscription"
)

// SubscriptionHandlers holds dependencies for subscription-related HTTP handlers.
type SubscriptionHandlers struct {
	repo         establishment.Repository
	stripeClient subscription.Client
	successURL   string
	cancelURL    string
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers instance.
func NewSubscriptionHandlers(
	repo establishment.Repository,
	stripeClient subscription.Client,
	successURL string,
	cancelURL string,
) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		repo:         repo,
		stripeClient: stripeClient,
		successURL:   successURL,
		cancelURL:    cancelURL,
	}
}

// CheckoutRequest represents the request body for creating a tier-upgrade
// Checkout Session.
type CheckoutRequest struct {
	EstablishmentID string `json:"establishment_id"`
	PriceID         string `json:"price_id"`
}

// CheckoutResponse represents the response for a successful checkout session creation.
type CheckoutResponse struct {
	SessionURL string `json:"session_url"`
	SessionID  string `json:"session_id"`
}

// Checkout creates a Stripe Checkout Session for a subscription tier upgrade.
// POST /subscriptions/checkout
func (h *SubscriptionHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "authentication required")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	if req.EstablishmentID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "establishment_id is required")
		return
	}
	if req.PriceID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "price_id is required")
		return
	}

	if _, err := h.repo.GetByID(ctx, req.EstablishmentID); err != nil {
		if errors.Is(err, establishment.ErrNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "establishment not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get establishment", "establishment_id", req.EstablishmentID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to retrieve establishment")
		return
	}

	sess, err := h.stripeClient.CreateCheckoutSession(&subscription.CheckoutParams{
		EstablishmentID: req.EstablishmentID,
		PriceID:         req.PriceID,
		SuccessURL:      h.successURL,
		CancelURL:       h.cancelURL,
	})
	if err != nil {
		if errors.Is(err, subscription.ErrUnmappedPrice) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "price_id does not match a subscription tier")
			return
		}
		slog.ErrorContext(ctx, "failed to create checkout session",
			"establishment_id", req.EstablishmentID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to create checkout session")
		return
	}

	writeJSON(w, r, http.StatusOK, CheckoutResponse{
		SessionURL: sess.URL,
		SessionID:  sess.ID,
	})
}
