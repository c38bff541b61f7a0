// Package establishment provides the establishment model and repositories
// backing search, ranking, and subscription updates.
package establishment

import (
	"time"

	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/subscription"
)

// RankCache holds the precomputed, location-independent ranking fields.
// These are derived values: only the rank cache updater writes them, and they
// may lag the quality/tier source fields by at most one recomputation cycle.
type RankCache struct {
	// QualityScore is the cached quality factor on [0, 100].
	QualityScore float64 `json:"quality_score"`

	// SubscriptionScore is the cached tier point contribution.
	SubscriptionScore float64 `json:"subscription_score"`

	// StaticRank is the precomputable portion of the composite under
	// default weights, used as a stable secondary sort key.
	StaticRank float64 `json:"static_rank"`

	// UpdatedAt is when the cache fields were last recomputed.
	// Nil means the establishment has never been ranked.
	UpdatedAt *time.Time `json:"rank_updated_at,omitempty"`
}

// Establishment is a restaurant-directory entry with the fields the ranking
// core reads and writes. CRUD surfaces own the remaining profile fields.
type Establishment struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`

	// Quality signals, mutated by review ingestion.
	AverageRating float64 `json:"average_rating"` // 0.0 - 5.0
	ReviewCount   int     `json:"review_count"`

	// Tier is mutated by subscription purchases.
	Tier subscription.Tier `json:"subscription_tier"`

	// Active establishments are recomputed on the short ranking interval;
	// inactive ones on the long interval.
	Active bool `json:"active"`

	RankCache RankCache `json:"rank_cache"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RankDue reports whether the establishment's cached rank is older than the
// interval applicable to its activity class at the given instant.
// A never-ranked establishment is always due.
func (e *Establishment) RankDue(now time.Time, activeInterval, inactiveInterval time.Duration) bool {
	if e.RankCache.UpdatedAt == nil {
		return true
	}
	interval := inactiveInterval
	if e.Active {
		interval = activeInterval
	}
	return now.Sub(*e.RankCache.UpdatedAt) >= interval
}
