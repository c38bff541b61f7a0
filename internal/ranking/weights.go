package ranking

import (
	"errors"
	"fmt"
	"math"
)

// SortPreference selects how search results are ordered.
type SortPreference string

// Supported sort preferences.
const (
	SortDefault    SortPreference = "default"
	SortByRating   SortPreference = "by_rating"
	SortByDistance SortPreference = "by_distance"
)

// WeightTolerance is the floating-point tolerance applied when validating
// that a weight set sums to 1.0.
const WeightTolerance = 1e-9

// DefaultVelocityThresholdMPS is the movement speed above which the searcher
// is assumed to be in transit and distance dominates the ordering.
// 3 m/s is a fast walk; anything above it is cycling or driving.
const DefaultVelocityThresholdMPS = 3.0

// ErrInvalidWeights is returned when a weight set does not sum to 1.0 within
// tolerance or contains a negative component.
var ErrInvalidWeights = errors.New("ranking weights must be non-negative and sum to 1.0")

// WeightSet holds the per-factor weights for composite scoring.
// A WeightSet obtained from NewWeightSet or SelectWeights always sums to 1.0.
type WeightSet struct {
	Distance     float64 `json:"distance"`
	Quality      float64 `json:"quality"`
	Subscription float64 `json:"subscription"`
}

// NewWeightSet validates and returns a weight set.
// Rejection happens at construction time so every downstream consumer can
// assume a normalized set.
func NewWeightSet(distance, quality, subscription float64) (WeightSet, error) {
	w := WeightSet{Distance: distance, Quality: quality, Subscription: subscription}
	if err := w.Validate(); err != nil {
		return WeightSet{}, err
	}
	return w, nil
}

// Validate checks that all components are non-negative and sum to 1.0 within
// WeightTolerance.
func (w WeightSet) Validate() error {
	if w.Distance < 0 || w.Quality < 0 || w.Subscription < 0 {
		return fmt.Errorf("%w: got {distance: %v, quality: %v, subscription: %v}",
			ErrInvalidWeights, w.Distance, w.Quality, w.Subscription)
	}
	sum := w.Distance + w.Quality + w.Subscription
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("%w: sum is %v", ErrInvalidWeights, sum)
	}
	return nil
}

// DefaultWeights returns the balanced weight set used when the search context
// requests no adaptation.
func DefaultWeights() WeightSet {
	return WeightSet{
		Distance:     0.35,
		Quality:      0.40,
		Subscription: 0.25,
	}
}

// Context carries the parts of a search request that influence weight
// selection. It is ephemeral and never persisted.
type Context struct {
	// Sort is the caller's requested ordering.
	Sort SortPreference

	// VelocityMPS is the caller's movement speed in meters per second,
	// derived from consecutive GPS samples. Zero means unknown/stationary.
	VelocityMPS float64

	// VelocityThresholdMPS overrides the speed above which distance-heavy
	// weights apply. Zero selects DefaultVelocityThresholdMPS.
	VelocityThresholdMPS float64
}

// ratingHeavyWeights is the weight set for the by_rating sort preference.
//
// The source override states quality 0.60 and distance 0.25 with subscription
// untouched, which does not sum to 1.0 against the default subscription
// weight of 0.25. The renormalization rule here is deterministic: hold
// subscription at its default and scale the stated quality/distance pair
// proportionally to fill the remaining 0.75.
func ratingHeavyWeights(base WeightSet) WeightSet {
	const statedQuality, statedDistance = 0.60, 0.25
	remainder := 1.0 - base.Subscription
	scale := remainder / (statedQuality + statedDistance)
	return WeightSet{
		Distance:     statedDistance * scale,
		Quality:      statedQuality * scale,
		Subscription: base.Subscription,
	}
}

// distanceHeavyWeights is the weight set for in-transit searchers and the
// by_distance sort preference: distance takes 0.50 and the remainder is split
// between quality and subscription preserving their base ratio.
func distanceHeavyWeights(base WeightSet) WeightSet {
	const distance = 0.50
	remainder := 1.0 - distance
	ratio := base.Quality + base.Subscription
	return WeightSet{
		Distance:     distance,
		Quality:      remainder * base.Quality / ratio,
		Subscription: remainder * base.Subscription / ratio,
	}
}

// SelectWeights returns the validated weight set for a search context.
// Adaptations are mutually exclusive: an explicit sort preference wins over
// velocity, and velocity-based adaptation applies only to the default sort.
func SelectWeights(ctx Context, base WeightSet) (WeightSet, error) {
	if err := base.Validate(); err != nil {
		return WeightSet{}, err
	}

	var w WeightSet
	switch ctx.Sort {
	case SortByRating:
		w = ratingHeavyWeights(base)
	case SortByDistance:
		w = distanceHeavyWeights(base)
	case SortDefault, "":
		threshold := ctx.VelocityThresholdMPS
		if threshold == 0 {
			threshold = DefaultVelocityThresholdMPS
		}
		if ctx.VelocityMPS > threshold {
			w = distanceHeavyWeights(base)
		} else {
			w = base
		}
	default:
		return WeightSet{}, fmt.Errorf("%w: unknown sort preference %q", ErrInvalidWeights, ctx.Sort)
	}

	if err := w.Validate(); err != nil {
		return WeightSet{}, err
	}
	return w, nil
}
