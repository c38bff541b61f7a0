// Package token implements the refresh-token rotation state machine:
// single-use tokens linked into chains, reuse detection, and full-user
// revocation.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenTTL is how long a refresh token stays rotatable.
const RefreshTokenTTL = 7 * 24 * time.Hour

// valueBytes is the entropy of a token value. 32 bytes encodes to a
// fixed-length 43-character string.
const valueBytes = 32

// State classifies a token within its chain.
type State string

const (
	// StateLive is an issued token that has not been consumed.
	StateLive State = "issued_live"
	// StateConsumed is a token rotated away through normal refresh.
	StateConsumed State = "consumed"
	// StateRevoked is a token invalidated outside normal rotation.
	StateRevoked State = "revoked"
)

// RefreshToken is one record in a rotation chain. Chains are linked through
// ReplacedBy and indexed by user so revocation can fan out with a single
// bulk update instead of a pointer walk.
type RefreshToken struct {
	ID        string
	Value     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	// ReplacedBy is the ID of the successor issued when this token was
	// consumed. Nil for live and revoked tokens.
	ReplacedBy *string
}

// State derives the chain state from the consumption fields.
func (t *RefreshToken) State() State {
	if t.UsedAt == nil {
		return StateLive
	}
	if t.ReplacedBy != nil {
		return StateConsumed
	}
	return StateRevoked
}

// Expired reports whether the token is past its expiry at the given time.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// newToken creates a live token for the user.
func newToken(userID string, now time.Time, ttl time.Duration) (*RefreshToken, error) {
	value, err := newValue()
	if err != nil {
		return nil, err
	}
	return &RefreshToken{
		ID:        uuid.NewString(),
		Value:     value,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// newValue returns an unguessable fixed-length token value.
func newValue() (string, error) {
	buf := make([]byte, valueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
