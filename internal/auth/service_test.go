package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dinefind/dinefind/internal/token"
)

func newTestAuthService(t *testing.T) (*Service, *token.InMemoryStore) {
	t.Helper()
	store := token.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := token.NewGuard(store, token.GuardConfig{Logger: logger})
	return NewService(NewJWTService(testSecret), guard, logger), store
}

func TestLoginReturnsValidPair(t *testing.T) {
	svc, _ := newTestAuthService(t)

	pair, err := svc.Login(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if pair.RefreshToken == "" {
		t.Error("expected a refresh token value")
	}

	userID, err := svc.ValidateAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess() error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("subject = %s, want user-123", userID)
	}
}

func TestRefreshRotatesAndStillAuthenticates(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "user-123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh must rotate the token value")
	}

	userID, err := svc.ValidateAccess(next.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess() error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("subject = %s, want user-123", userID)
	}
}

func TestRefreshReuseSurfacesSecurityAlert(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "user-123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, token.ErrSecurityAlert) {
		t.Errorf("expected ErrSecurityAlert passed through unwrapped, got %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	if _, err := svc.Refresh(context.Background(), "bogus"); !errors.Is(err, token.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestLogoutThenRefreshAlerts(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "user-123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	// A logged-out token is consumed; presenting it again is reuse.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, token.ErrSecurityAlert) {
		t.Errorf("expected ErrSecurityAlert, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	phone, err := svc.Login(ctx, "user-123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	laptop, err := svc.Login(ctx, "user-123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if err := svc.LogoutAll(ctx, "user-123"); err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}

	for _, value := range []string{phone.RefreshToken, laptop.RefreshToken} {
		if _, err := svc.Refresh(ctx, value); !errors.Is(err, token.ErrSecurityAlert) {
			t.Errorf("expected ErrSecurityAlert after logout-all, got %v", err)
		}
	}
}
