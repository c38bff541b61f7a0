// Package api provides HTTP handlers for the DineFind API.
package api

import (
	"encoding/json"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dinefind/dinefind/internal/establishment"
	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/middleware"
	"github.com/dinefind/dinefind/internal/ranking"
	"github.com/dinefind/dinefind/internal/subscription"
)

// EstablishmentHandlers holds dependencies for establishment HTTP handlers.
type EstablishmentHandlers struct {
	repo establishment.Repository
}

// NewEstablishmentHandlers creates a new EstablishmentHandlers instance.
func NewEstablishmentHandlers(repo establishment.Repository) *EstablishmentHandlers {
	return &EstablishmentHandlers{repo: repo}
}

// CreateEstablishmentRequest is the request body for POST /establishments.
type CreateEstablishmentRequest struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Active *bool   `json:"active,omitempty"`
}

// UpdateEstablishmentRequest is the request body for PATCH /establishments/{id}.
// Only provided fields are applied.
type UpdateEstablishmentRequest struct {
	Name          *string  `json:"name,omitempty"`
	AverageRating *float64 `json:"average_rating,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty"`
	Active        *bool    `json:"active,omitempty"`
}

// RankBreakdownResponse is the response for GET /establishments/{id}/rank.
// It pairs the cached ranking fields with factors recomputed from the live
// signals, so operators can see how stale the cache is.
type RankBreakdownResponse struct {
	EstablishmentID string                  `json:"establishment_id"`
	Cached          establishment.RankCache `json:"cached"`
	Live            RankBreakdownLive       `json:"live"`
	Stale           bool                    `json:"stale"`
}

// RankBreakdownLive holds factors recomputed from current signals.
type RankBreakdownLive struct {
	QualityScore      float64 `json:"quality_score"`
	SubscriptionScore float64 `json:"subscription_score"`
	StaticRank        float64 `json:"static_rank"`
}

// Create handles POST /establishments - registers a new establishment.
func (h *EstablishmentHandlers) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req CreateEstablishmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "name is required")
		return
	}

	location := geo.Point{Lat: req.Lat, Lng: req.Lng}
	if !location.Valid() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "lat/lng out of range")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	e := &establishment.Establishment{
		Name:     html.EscapeString(name),
		Location: location,
		Tier:     subscription.TierFree,
		Active:   active,
	}

	if err := h.repo.Insert(r.Context(), e); err != nil {
		slog.ErrorContext(r.Context(), "failed to insert establishment", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create establishment")
		return
	}

	writeJSON(w, r, http.StatusCreated, e)
}

// Serve dispatches /establishments/{id} and /establishments/{id}/rank.
func (h *EstablishmentHandlers) Serve(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/establishments/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Establishment ID is required")
		return
	}
	id := pathParts[0]

	switch {
	case len(pathParts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPatch:
			h.update(w, r, id)
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		}
	case len(pathParts) == 2 && pathParts[1] == "rank":
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.rankBreakdown(w, r, id)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
	}
}

// get handles GET /establishments/{id}.
func (h *EstablishmentHandlers) get(w http.ResponseWriter, r *http.Request, id string) {
	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, establishment.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Establishment not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get establishment", "error", err, "establishment_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve establishment")
		return
	}

	writeJSON(w, r, http.StatusOK, e)
}

// update handles PATCH /establishments/{id} - applies quality-signal and
// profile updates. Rank cache fields are untouched; the updater refreshes
// them on its next cycle.
func (h *EstablishmentHandlers) update(w http.ResponseWriter, r *http.Request, id string) {
	var req UpdateEstablishmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	existing, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, establishment.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Establishment not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get establishment", "error", err, "establishment_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve establishment")
		return
	}

	if req.AverageRating != nil || req.ReviewCount != nil {
		rating := existing.AverageRating
		if req.AverageRating != nil {
			rating = *req.AverageRating
		}
		if rating < 0 || rating > ranking.MaxRating {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "average_rating must be between 0 and 5")
			return
		}

		count := existing.ReviewCount
		if req.ReviewCount != nil {
			count = *req.ReviewCount
		}
		if count < 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "review_count must be non-negative")
			return
		}

		if err := h.repo.UpdateQualitySignals(r.Context(), id, rating, count); err != nil {
			slog.ErrorContext(r.Context(), "failed to update quality signals", "error", err, "establishment_id", id)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update establishment")
			return
		}
	}

	if req.Name != nil || req.Active != nil {
		var name *string
		if req.Name != nil {
			trimmed := strings.TrimSpace(*req.Name)
			if trimmed == "" {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
				WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "name cannot be empty")
				return
			}
			escaped := html.EscapeString(trimmed)
			name = &escaped
		}

		if err := h.repo.UpdateProfile(r.Context(), id, name, req.Active); err != nil {
			slog.ErrorContext(r.Context(), "failed to update profile", "error", err, "establishment_id", id)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update establishment")
			return
		}
	}

	updated, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to reload establishment", "error", err, "establishment_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve establishment")
		return
	}

	writeJSON(w, r, http.StatusOK, updated)
}

// rankBreakdown handles GET /establishments/{id}/rank.
func (h *EstablishmentHandlers) rankBreakdown(w http.ResponseWriter, r *http.Request, id string) {
	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, establishment.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Establishment not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get establishment", "error", err, "establishment_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve establishment")
		return
	}

	quality := ranking.QualityFactor(e.AverageRating, e.ReviewCount)
	sub, err := ranking.SubscriptionFactor(e.Tier)
	if err != nil {
		slog.ErrorContext(r.Context(), "unknown subscription tier", "error", err, "establishment_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnknownTier)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeUnknownTier, "Establishment has an unknown subscription tier")
		return
	}

	live := RankBreakdownLive{
		QualityScore:      quality,
		SubscriptionScore: sub,
		StaticRank:        ranking.StaticRank(quality, sub),
	}

	stale := e.RankCache.UpdatedAt == nil ||
		live.QualityScore != e.RankCache.QualityScore ||
		live.SubscriptionScore != e.RankCache.SubscriptionScore

	writeJSON(w, r, http.StatusOK, RankBreakdownResponse{
		EstablishmentID: e.ID,
		Cached:          e.RankCache,
		Live:            live,
		Stale:           stale,
	})
}
