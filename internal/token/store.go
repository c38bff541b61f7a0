package token

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTokenNotFound is returned when a token value matches no record.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrAlreadyConsumed is returned by a store when the compare-and-swap on
// used_at fails because another operation consumed the token first.
var ErrAlreadyConsumed = errors.New("refresh token already consumed")

// Store persists refresh tokens. Implementations must make Rotate an atomic
// compare-and-swap so two concurrent refreshes of the same token cannot
// both succeed, and must make RevokeAllForUser atomic across the user's
// full token set.
type Store interface {
	// Create stores a new live token.
	Create(ctx context.Context, t *RefreshToken) error

	// GetByValue retrieves a token by its opaque value.
	GetByValue(ctx context.Context, value string) (*RefreshToken, error)

	// Rotate consumes the token with the given ID and creates its
	// successor in one atomic step: used_at and replaced_by are set only
	// if used_at is still null. Returns ErrAlreadyConsumed when the
	// compare-and-swap fails and ErrTokenNotFound when the ID is unknown.
	Rotate(ctx context.Context, id string, usedAt time.Time, successor *RefreshToken) error

	// RevokeAllForUser sets used_at on every live token belonging to the
	// user, leaving replaced_by null. Idempotent: tokens already consumed
	// or revoked are untouched and a second call is a no-op.
	RevokeAllForUser(ctx context.Context, userID string, usedAt time.Time) error

	// Invalidate sets used_at on the token with the given ID if it is
	// still live. Consuming an already-used token here is a no-op.
	Invalidate(ctx context.Context, id string, usedAt time.Time) error

	// ListByUser returns all tokens for a user, any state.
	ListByUser(ctx context.Context, userID string) ([]RefreshToken, error)
}

// InMemoryStore is a Store for tests and local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*RefreshToken
	byValue map[string]string
	byUser  map[string][]string
}

// NewInMemoryStore creates an empty in-memory token store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]*RefreshToken),
		byValue: make(map[string]string),
		byUser:  make(map[string][]string),
	}
}

// Create stores a new live token.
func (s *InMemoryStore) Create(_ context.Context, t *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(t)
	return nil
}

// insertLocked stores a copy of t. Caller holds the write lock.
func (s *InMemoryStore) insertLocked(t *RefreshToken) {
	stored := copyToken(t)
	s.byID[stored.ID] = stored
	s.byValue[stored.Value] = stored.ID
	s.byUser[stored.UserID] = append(s.byUser[stored.UserID], stored.ID)
}

// GetByValue retrieves a token by its opaque value.
func (s *InMemoryStore) GetByValue(_ context.Context, value string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byValue[value]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(s.byID[id]), nil
}

// Rotate consumes a token and creates its successor atomically.
func (s *InMemoryStore) Rotate(_ context.Context, id string, usedAt time.Time, successor *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return ErrTokenNotFound
	}
	if current.UsedAt != nil {
		return ErrAlreadyConsumed
	}

	used := usedAt
	current.UsedAt = &used
	replacedBy := successor.ID
	current.ReplacedBy = &replacedBy
	s.insertLocked(successor)
	return nil
}

// RevokeAllForUser revokes every live token for the user.
func (s *InMemoryStore) RevokeAllForUser(_ context.Context, userID string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byUser[userID] {
		t := s.byID[id]
		if t.UsedAt == nil {
			used := usedAt
			t.UsedAt = &used
		}
	}
	return nil
}

// Invalidate consumes a live token without a successor.
func (s *InMemoryStore) Invalidate(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrTokenNotFound
	}
	if t.UsedAt == nil {
		used := usedAt
		t.UsedAt = &used
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is before the cutoff.
// Returns the number of tokens removed.
func (s *InMemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, t := range s.byID {
		if !t.ExpiresAt.Before(before) {
			continue
		}
		delete(s.byID, id)
		delete(s.byValue, t.Value)
		ids := s.byUser[t.UserID]
		for i, uid := range ids {
			if uid == id {
				s.byUser[t.UserID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		removed++
	}
	return removed, nil
}

// ListByUser returns all tokens for a user.
func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]RefreshToken, 0, len(ids))
	for _, id := range ids {
		out = append(out, *copyToken(s.byID[id]))
	}
	return out, nil
}

func copyToken(t *RefreshToken) *RefreshToken {
	c := *t
	if t.UsedAt != nil {
		used := *t.UsedAt
		c.UsedAt = &used
	}
	if t.ReplacedBy != nil {
		replaced := *t.ReplacedBy
		c.ReplacedBy = &replaced
	}
	return &c
}
