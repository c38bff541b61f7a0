package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dinefind/dinefind/internal/token"
)

// TokenPair is what a successful login or refresh hands to the client: a
// short-lived signed access token and an opaque single-use refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Service ties access-token issuance to the refresh-token rotation guard.
// Refresh errors pass through unwrapped so callers can distinguish
// token.ErrTokenExpired, token.ErrTokenNotFound, and token.ErrSecurityAlert.
type Service struct {
	jwt    *JWTService
	guard  *token.Guard
	logger *slog.Logger
}

// NewService creates an authentication service.
func NewService(jwt *JWTService, guard *token.Guard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jwt: jwt, guard: guard, logger: logger}
}

// Login issues a fresh token pair for an authenticated user, starting a
// new refresh chain. Credential verification happens before this call.
func (s *Service) Login(ctx context.Context, userID string) (*TokenPair, error) {
	refresh, err := s.guard.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	access, err := s.jwt.GenerateAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	s.logger.Info("user logged in", "user_id", userID)
	return &TokenPair{AccessToken: access, RefreshToken: refresh.Value}, nil
}

// Refresh rotates the presented refresh token and returns a new pair.
func (s *Service) Refresh(ctx context.Context, refreshValue string) (*TokenPair, error) {
	rotated, err := s.guard.Rotate(ctx, refreshValue)
	if err != nil {
		return nil, err
	}

	access, err := s.jwt.GenerateAccessToken(rotated.UserID)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: rotated.Value}, nil
}

// Logout invalidates the presented refresh token only.
func (s *Service) Logout(ctx context.Context, refreshValue string) error {
	return s.guard.Invalidate(ctx, refreshValue)
}

// LogoutAll revokes every refresh token for the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.guard.RevokeAll(ctx, userID)
}

// ValidateAccess validates an access token and returns the subject user ID.
func (s *Service) ValidateAccess(tokenString string) (string, error) {
	claims, err := s.jwt.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
