package establishment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/subscription"
)

// ErrNotFound is returned when an establishment does not exist.
var ErrNotFound = errors.New("establishment not found")

// Repository defines establishment data operations.
// Rank cache fields are written only through UpdateRankCache; all other
// mutations leave them untouched so readers always see the last committed
// recomputation.
type Repository interface {
	// Insert stores a new establishment, assigning an ID if absent.
	Insert(ctx context.Context, e *Establishment) error

	// GetByID retrieves an establishment by its ID.
	GetByID(ctx context.Context, id string) (*Establishment, error)

	// ListForRanking returns every establishment with the fields the rank
	// cache updater needs.
	ListForRanking(ctx context.Context) ([]Establishment, error)

	// FindWithin returns establishments whose location falls inside the
	// bounding box. Callers apply exact radius filtering.
	FindWithin(ctx context.Context, box geo.BoundingBox) ([]Establishment, error)

	// UpdateRankCache atomically writes the cached ranking fields for one
	// establishment. A failure here affects only that establishment.
	UpdateRankCache(ctx context.Context, id string, cache RankCache) error

	// UpdateQualitySignals applies a review-driven mutation of the rating
	// aggregate. Rank cache fields are deliberately not touched: the change
	// becomes visible in rankings on the next recomputation cycle.
	UpdateQualitySignals(ctx context.Context, id string, averageRating float64, reviewCount int) error

	// UpdateSubscriptionTier applies a purchased tier.
	// Satisfies subscription.TierUpdater.
	UpdateSubscriptionTier(ctx context.Context, id string, tier subscription.Tier) error

	// UpdateProfile applies a partial update of profile fields. Nil fields
	// are left unchanged.
	UpdateProfile(ctx context.Context, id string, name *string, active *bool) error
}

// InMemoryRepository implements Repository with in-memory storage.
// Used for testing and development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Establishment
}

// NewInMemoryRepository creates a new in-memory establishment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Establishment),
	}
}

// Insert stores a new establishment, assigning an ID if absent.
func (r *InMemoryRepository) Insert(_ context.Context, e *Establishment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Tier == "" {
		e.Tier = subscription.TierFree
	}

	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	copied := copyEstablishment(e)
	r.records[e.ID] = copied
	return nil
}

// GetByID retrieves an establishment by its ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Establishment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEstablishment(e), nil
}

// ListForRanking returns every establishment.
func (r *InMemoryRepository) ListForRanking(_ context.Context) ([]Establishment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Establishment, 0, len(r.records))
	for _, e := range r.records {
		result = append(result, *copyEstablishment(e))
	}
	return result, nil
}

// FindWithin returns establishments inside the bounding box.
func (r *InMemoryRepository) FindWithin(_ context.Context, box geo.BoundingBox) ([]Establishment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Establishment
	for _, e := range r.records {
		if box.Contains(e.Location) {
			result = append(result, *copyEstablishment(e))
		}
	}
	return result, nil
}

// UpdateRankCache atomically writes the cached ranking fields.
func (r *InMemoryRepository) UpdateRankCache(_ context.Context, id string, cache RankCache) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}

	e.RankCache = cache
	if cache.UpdatedAt != nil {
		t := *cache.UpdatedAt
		e.RankCache.UpdatedAt = &t
	}
	return nil
}

// UpdateQualitySignals applies a review-driven rating mutation.
func (r *InMemoryRepository) UpdateQualitySignals(_ context.Context, id string, averageRating float64, reviewCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}

	e.AverageRating = averageRating
	e.ReviewCount = reviewCount
	e.UpdatedAt = time.Now()
	return nil
}

// UpdateSubscriptionTier applies a purchased tier.
func (r *InMemoryRepository) UpdateSubscriptionTier(_ context.Context, id string, tier subscription.Tier) error {
	if !tier.Valid() {
		return subscription.ErrUnknownTier
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}

	e.Tier = tier
	e.UpdatedAt = time.Now()
	return nil
}

// UpdateProfile applies a partial update of profile fields.
func (r *InMemoryRepository) UpdateProfile(_ context.Context, id string, name *string, active *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}

	if name != nil {
		e.Name = *name
	}
	if active != nil {
		e.Active = *active
	}
	e.UpdatedAt = time.Now()
	return nil
}

// copyEstablishment returns a deep copy to prevent external mutation.
func copyEstablishment(e *Establishment) *Establishment {
	copied := *e
	if e.RankCache.UpdatedAt != nil {
		t := *e.RankCache.UpdatedAt
		copied.RankCache.UpdatedAt = &t
	}
	return &copied
}
