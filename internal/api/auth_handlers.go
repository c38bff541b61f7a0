// Package api provides HTTP handlers for the DineFind API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dinefind/dinefind/internal/auth"
	"github.com/dinefind/dinefind/internal/middleware"
	"github.com/dinefind/dinefind/internal/token"
)

// AuthHandlers holds dependencies for authentication HTTP handlers.
type AuthHandlers struct {
	service *auth.Service
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(service *auth.Service) *AuthHandlers {
	return &AuthHandlers{service: service}
}

// LoginRequest is the request body for POST /auth/login.
// Credential verification happens upstream of this service; the gateway
// forwards the verified user ID.
type LoginRequest struct {
	UserID string `json:"user_id"`
}

// RefreshRequest is the request body for POST /auth/refresh and /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /auth/login - issues a new token pair.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "user_id is required")
		return
	}

	pair, err := h.service.Login(r.Context(), req.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "login failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to log in")
		return
	}

	writeJSON(w, r, http.StatusOK, pair)
}

// Refresh handles POST /auth/refresh - rotates the refresh token.
//
// Reuse of an already-consumed token returns security_alert and revokes
// every session for the user; clients must treat it as a forced logout.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrSecurityAlert):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeSecurityAlert)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeSecurityAlert,
				"Refresh token reuse detected; all sessions have been revoked")
		case errors.Is(err, token.ErrTokenExpired):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeTokenExpired)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeTokenExpired, "Refresh token has expired")
		case errors.Is(err, token.ErrTokenNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid refresh token")
		default:
			slog.ErrorContext(r.Context(), "refresh failed", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to refresh session")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, pair)
}

// Logout handles POST /auth/logout - invalidates the presented refresh token.
// Logging out an unknown token is not an error.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "refresh_token is required")
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil && !errors.Is(err, token.ErrTokenNotFound) {
		slog.ErrorContext(r.Context(), "logout failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to log out")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /auth/logout_all - revokes every session for the
// authenticated user. Requires a valid access token.
func (h *AuthHandlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	if err := h.service.LogoutAll(r.Context(), userID); err != nil {
		slog.ErrorContext(r.Context(), "logout all failed", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to revoke sessions")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Authenticate is middleware that validates the Bearer access token and
// stores the authenticated user ID in the request context.
func (h *AuthHandlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing bearer token")
			return
		}

		userID, err := h.service.ValidateAccess(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid access token")
			return
		}

		ctx := middleware.SetUserID(r.Context(), userID)
		middleware.UpdateResponseContext(w, ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
