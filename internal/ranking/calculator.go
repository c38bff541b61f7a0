package ranking

import (
	"fmt"

	"github.com/dinefind/dinefind/internal/subscription"
)

// Factor scale bounds. Every sub-score lands in [FactorMin, FactorMax] before
// weighting, so a composite under a normalized weight set stays in the same
// range.
const (
	FactorMin = 0.0
	FactorMax = 100.0
)

// Quality factor constants.
const (
	// MaxRating is the rating ceiling on the five-star scale.
	MaxRating = 5.0

	// ReviewCountCeiling is the review volume at which the volume term
	// saturates. Beyond this, more reviews add no score.
	ReviewCountCeiling = 200
)

// tierPoints is the flat point contribution per subscription tier.
// The values sit on a 0-100-equivalent scale and are not re-normalized.
var tierPoints = map[subscription.Tier]float64{
	subscription.TierFree:     0,
	subscription.TierBasic:    15,
	subscription.TierStandard: 35,
	subscription.TierPremium:  50,
}

// DistanceFactor scores proximity on [0, 100] with a linear falloff:
// 100 at the origin, 0 at the radius edge and beyond. Establishments outside
// the radius floor at 0 but remain eligible if other filters pass.
func DistanceFactor(distanceMeters, maxRadiusMeters float64) float64 {
	if maxRadiusMeters <= 0 {
		return FactorMin
	}
	f := FactorMax * (1.0 - distanceMeters/maxRadiusMeters)
	return clamp(f, FactorMin, FactorMax)
}

// QualityFactor scores rating and review volume on [0, 100]: up to 50 points
// from the average rating and up to 50 from review count, saturating at
// ReviewCountCeiling. With zero reviews only the rating term contributes.
func QualityFactor(averageRating float64, reviewCount int) float64 {
	rating := clamp(averageRating, 0, MaxRating)
	if reviewCount < 0 {
		reviewCount = 0
	}
	volume := reviewCount
	if volume > ReviewCountCeiling {
		volume = ReviewCountCeiling
	}

	f := (rating/MaxRating)*50 + (float64(volume)/ReviewCountCeiling)*50
	return clamp(f, FactorMin, FactorMax)
}

// SubscriptionFactor is a pure lookup of the tier's point contribution.
// An unknown tier is a configuration error, never a silent zero: ranking with
// a mistyped tier must fail loudly rather than quietly bury the record.
func SubscriptionFactor(tier subscription.Tier) (float64, error) {
	points, ok := tierPoints[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %q", subscription.ErrUnknownTier, tier)
	}
	return points, nil
}

// Scores holds the per-factor breakdown and the weighted composite for one
// establishment under one search context.
type Scores struct {
	Distance     float64 `json:"distance_score"`
	Quality      float64 `json:"quality_score"`
	Subscription float64 `json:"subscription_score"`
	Composite    float64 `json:"composite"`
}

// Composite combines factor scores under a weight set.
// The caller is responsible for passing a validated WeightSet; the result is
// in [0, 100] whenever each factor is.
func Composite(distance, quality, subscription float64, w WeightSet) float64 {
	return distance*w.Distance + quality*w.Quality + subscription*w.Subscription
}

// Snapshot is the ranking-relevant view of an establishment at scoring time.
type Snapshot struct {
	AverageRating float64
	ReviewCount   int
	Tier          subscription.Tier
}

// Score computes the full factor breakdown for an establishment at a given
// distance from the search origin.
func Score(snap Snapshot, distanceMeters, maxRadiusMeters float64, w WeightSet) (Scores, error) {
	if err := w.Validate(); err != nil {
		return Scores{}, err
	}

	subFactor, err := SubscriptionFactor(snap.Tier)
	if err != nil {
		return Scores{}, err
	}

	s := Scores{
		Distance:     DistanceFactor(distanceMeters, maxRadiusMeters),
		Quality:      QualityFactor(snap.AverageRating, snap.ReviewCount),
		Subscription: subFactor,
	}
	s.Composite = Composite(s.Distance, s.Quality, s.Subscription, w)
	return s, nil
}

// StaticRank combines the location-independent factors under the default
// weights. It is the precomputable portion of the composite, used by the rank
// cache updater as a stable secondary sort key.
func StaticRank(quality, subscription float64) float64 {
	w := DefaultWeights()
	return quality*w.Quality + subscription*w.Subscription
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
