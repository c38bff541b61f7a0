// Package api provides HTTP handlers for the DineFind API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/middleware"
	"github.com/dinefind/dinefind/internal/ranking"
	"github.com/dinefind/dinefind/internal/search"
)

// SearchHandlers holds dependencies for search HTTP handlers.
type SearchHandlers struct {
	service *search.Service
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(service *search.Service) *SearchHandlers {
	return &SearchHandlers{service: service}
}

// SearchResponse represents the response for an establishment search.
type SearchResponse struct {
	Results []search.Result   `json:"results"`
	Total   int               `json:"total"`
	Count   int               `json:"count"`
	Weights ranking.WeightSet `json:"weights"`
}

// Search handles GET /search - ranked establishment search around an origin.
//
// Query parameters:
//   - lat, lng: query origin (required)
//   - radius: search radius in meters (required)
//   - sort: "default", "by_rating", or "by_distance" (optional)
//   - velocity: client travel speed in m/s (optional)
//   - limit, offset: pagination (optional)
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	query := r.URL.Query()

	latStr := query.Get("lat")
	lngStr := query.Get("lng")
	if latStr == "" || lngStr == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "lat and lng are required")
		return
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid lat")
		return
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid lng")
		return
	}

	radiusStr := query.Get("radius")
	if radiusStr == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "radius is required")
		return
	}
	radius, err := strconv.ParseFloat(strings.TrimSpace(radiusStr), 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid radius")
		return
	}

	var velocity float64
	if velocityStr := query.Get("velocity"); velocityStr != "" {
		velocity, err = strconv.ParseFloat(strings.TrimSpace(velocityStr), 64)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid velocity")
			return
		}
	}

	var limit int
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		if limit > search.MaxLimit {
			limit = search.MaxLimit
		}
	}

	var offset int
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "offset must be a non-negative integer")
			return
		}
	}

	params := search.Params{
		Origin:       geo.Point{Lat: lat, Lng: lng},
		RadiusMeters: radius,
		Sort:         ranking.SortPreference(query.Get("sort")),
		VelocityMPS:  velocity,
		Limit:        limit,
		Offset:       offset,
	}

	page, err := h.service.Search(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrInvalidQuery):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, ranking.ErrInvalidWeights):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSort)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSort,
				fmt.Sprintf("sort must be one of: %s, %s, %s", ranking.SortDefault, ranking.SortByRating, ranking.SortByDistance))
		default:
			slog.ErrorContext(r.Context(), "search failed", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to search establishments")
		}
		return
	}

	response := SearchResponse{
		Results: page.Results,
		Total:   page.Total,
		Count:   len(page.Results),
		Weights: page.Weights,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode search response", "error", err)
	}
}
