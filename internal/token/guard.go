package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTokenExpired is returned when a rotation presents a token past its
// expiry. The token is left as-is; the user must re-authenticate.
var ErrTokenExpired = errors.New("refresh token expired")

// ErrSecurityAlert is returned when a consumed or revoked token is
// presented again. By the time the caller sees it, every token for the
// affected user has been revoked. It is deliberately distinct from
// ErrTokenNotFound so handlers never conflate theft with a stale client.
var ErrSecurityAlert = errors.New("refresh token reuse detected")

// GuardConfig configures a Guard.
type GuardConfig struct {
	// TTL for newly issued tokens. Zero selects RefreshTokenTTL.
	TTL time.Duration
	// Logger for security events.
	Logger *slog.Logger
	// Metrics for token lifecycle tracking.
	Metrics *Metrics
}

// Guard drives the refresh-token state machine over a Store.
type Guard struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// NewGuard creates a Guard over the given store.
func NewGuard(store Store, config GuardConfig) *Guard {
	if config.TTL == 0 {
		config.TTL = RefreshTokenTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Guard{
		store:   store,
		ttl:     config.TTL,
		logger:  config.Logger,
		metrics: config.Metrics,
	}
}

// Issue creates a new live token for the user. Called on login and
// registration; each call starts a new chain.
func (g *Guard) Issue(ctx context.Context, userID string) (*RefreshToken, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty")
	}

	t, err := newToken(userID, time.Now(), g.ttl)
	if err != nil {
		return nil, err
	}
	if err := g.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	if g.metrics != nil {
		g.metrics.IncIssued()
	}
	g.logger.Debug("refresh token issued", "user_id", userID, "token_id", t.ID)
	return t, nil
}

// Rotate consumes the presented token and returns its successor.
//
// Presenting an already-consumed token is treated as probable theft: every
// token for the user is revoked and ErrSecurityAlert is returned. An
// expired live token fails with ErrTokenExpired and is left unchanged.
func (g *Guard) Rotate(ctx context.Context, value string) (*RefreshToken, error) {
	current, err := g.store.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("loading refresh token: %w", err)
	}

	now := time.Now()

	if current.UsedAt != nil {
		return nil, g.signalReuse(ctx, current, now)
	}
	if current.Expired(now) {
		return nil, ErrTokenExpired
	}

	successor, err := newToken(current.UserID, now, g.ttl)
	if err != nil {
		return nil, err
	}

	err = g.store.Rotate(ctx, current.ID, now, successor)
	if errors.Is(err, ErrAlreadyConsumed) {
		// Lost the race with a concurrent rotation of the same token.
		// Both requests presenting one token is exactly the reuse case.
		return nil, g.signalReuse(ctx, current, now)
	}
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	if g.metrics != nil {
		g.metrics.IncRotations()
	}
	g.logger.Debug("refresh token rotated",
		"user_id", current.UserID,
		"consumed_id", current.ID,
		"issued_id", successor.ID)
	return successor, nil
}

// Invalidate consumes the presented token without a successor. Normal
// logout: no fan-out, and an unknown value surfaces ErrTokenNotFound.
func (g *Guard) Invalidate(ctx context.Context, value string) error {
	current, err := g.store.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("loading refresh token: %w", err)
	}

	if err := g.store.Invalidate(ctx, current.ID, time.Now()); err != nil {
		return fmt.Errorf("invalidating refresh token: %w", err)
	}
	g.logger.Debug("refresh token invalidated", "user_id", current.UserID, "token_id", current.ID)
	return nil
}

// RevokeAll revokes every token for the user. Logout-all and admin
// action; idempotent.
func (g *Guard) RevokeAll(ctx context.Context, userID string) error {
	if err := g.store.RevokeAllForUser(ctx, userID, time.Now()); err != nil {
		return fmt.Errorf("revoking user tokens: %w", err)
	}
	if g.metrics != nil {
		g.metrics.IncRevocations()
	}
	g.logger.Info("all refresh tokens revoked", "user_id", userID)
	return nil
}

// signalReuse handles presentation of a consumed or revoked token: revoke
// the user's full token set, then surface the security alert.
func (g *Guard) signalReuse(ctx context.Context, presented *RefreshToken, now time.Time) error {
	g.logger.Warn("refresh token reuse detected",
		"user_id", presented.UserID,
		"token_id", presented.ID,
		"token_state", string(presented.State()))

	if g.metrics != nil {
		g.metrics.IncReuseAlerts()
	}

	if err := g.store.RevokeAllForUser(ctx, presented.UserID, now); err != nil {
		// The alert must still reach the caller; the revocation is
		// idempotent and safe to retry.
		return errors.Join(ErrSecurityAlert, fmt.Errorf("revoking user tokens: %w", err))
	}
	return ErrSecurityAlert
}
