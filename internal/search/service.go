// Package search ranks establishments around a query origin by combining
// the per-query distance factor with cached quality and subscription
// factors.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dinefind/dinefind/internal/establishment"
	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/rankcache"
	"github.com/dinefind/dinefind/internal/ranking"
	"github.com/dinefind/dinefind/internal/tracing"
)

// RankMirror serves rank entries from a low-latency store ahead of the SQL
// row cache. Implemented by *rankcache.Mirror.
type RankMirror interface {
	Get(ctx context.Context, establishmentID string) (rankcache.Entry, error)
}

// Query limits.
const (
	DefaultLimit    = 20
	MaxLimit        = 100
	MaxRadiusMeters = 50_000
)

// ErrInvalidQuery is returned when a search request fails validation.
var ErrInvalidQuery = errors.New("invalid search query")

// Params describes one search request.
type Params struct {
	// Origin is the query location all distances are measured from.
	Origin geo.Point
	// RadiusMeters bounds the result set. Required, at most MaxRadiusMeters.
	RadiusMeters float64
	// Sort selects the weight profile. Empty means SortDefault.
	Sort ranking.SortPreference
	// VelocityMPS is the client's reported travel speed in meters per
	// second. Zero when unknown.
	VelocityMPS float64
	// Limit caps the page size. Zero means DefaultLimit.
	Limit int
	// Offset skips ranked results for pagination.
	Offset int
}

// Result is one ranked establishment with the scores that produced its
// position, so clients can render a ranking breakdown.
type Result struct {
	Establishment  establishment.Establishment `json:"establishment"`
	DistanceMeters float64                     `json:"distance_meters"`
	Scores         ranking.Scores              `json:"scores"`
}

// Page is a ranked, paginated result set.
type Page struct {
	Results []Result          `json:"results"`
	Total   int               `json:"total"`
	Weights ranking.WeightSet `json:"weights"`
}

// Service executes ranked searches.
type Service struct {
	repo        establishment.Repository
	mirror      RankMirror
	calibration ranking.Calibration
	logger      *slog.Logger
	metrics     *Metrics
}

// NewService creates a search service. Mirror and metrics may be nil; without
// a mirror all cached factors come from the repository rows.
func NewService(repo establishment.Repository, mirror RankMirror, calibration ranking.Calibration, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		mirror:      mirror,
		calibration: calibration,
		logger:      logger,
		metrics:     metrics,
	}
}

func (p *Params) validate() error {
	if !p.Origin.Valid() {
		return fmt.Errorf("%w: origin out of range", ErrInvalidQuery)
	}
	if p.RadiusMeters <= 0 {
		return fmt.Errorf("%w: radius must be positive", ErrInvalidQuery)
	}
	if p.RadiusMeters > MaxRadiusMeters {
		return fmt.Errorf("%w: radius exceeds %d meters", ErrInvalidQuery, MaxRadiusMeters)
	}
	if p.Limit < 0 || p.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidQuery)
	}
	if p.Limit > MaxLimit {
		return fmt.Errorf("%w: limit exceeds %d", ErrInvalidQuery, MaxLimit)
	}
	if p.VelocityMPS < 0 {
		return fmt.Errorf("%w: velocity must be non-negative", ErrInvalidQuery)
	}
	return nil
}

// Search returns establishments within the radius, ranked by composite
// score under the weight profile the request selects. Quality and
// subscription factors come from the rank cache; only the distance factor
// is computed per request.
func (s *Service) Search(ctx context.Context, params Params) (page *Page, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "search_establishments")
	defer func() { endSpan(err) }()

	start := time.Now()

	if err = params.validate(); err != nil {
		return nil, err
	}
	if params.Limit == 0 {
		params.Limit = DefaultLimit
	}

	weights, err := ranking.SelectWeights(ranking.Context{
		Sort:                 params.Sort,
		VelocityMPS:          params.VelocityMPS,
		VelocityThresholdMPS: s.calibration.VelocityThresholdMPS,
	}, s.calibration.Weights)
	if err != nil {
		return nil, err
	}

	box := geo.BoundingBoxAround(params.Origin, params.RadiusMeters)
	candidates, err := s.repo.FindWithin(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("finding establishments in search area: %w", err)
	}

	results := make([]Result, 0, len(candidates))
	for i := range candidates {
		e := candidates[i]
		if !e.Active {
			continue
		}
		// Bounding box pre-filter is coarse; apply the exact radius.
		distance := geo.DistanceMeters(params.Origin, e.Location)
		if distance > params.RadiusMeters {
			continue
		}

		// The mirror is refreshed by the updater between row-cache writes,
		// so a hit supersedes whatever the candidate row carried.
		if entry, ok := s.mirrorLookup(ctx, e.ID); ok {
			updatedAt := entry.UpdatedAt
			e.RankCache = establishment.RankCache{
				QualityScore:      entry.QualityScore,
				SubscriptionScore: entry.SubscriptionScore,
				StaticRank:        entry.StaticRank,
				UpdatedAt:         &updatedAt,
			}
		}

		scores, scoreErr := s.score(e, distance, params.RadiusMeters, weights)
		if scoreErr != nil {
			s.logger.Warn("skipping establishment with unscorable record",
				"establishment_id", e.ID,
				"error", scoreErr)
			continue
		}

		results = append(results, Result{
			Establishment:  e,
			DistanceMeters: distance,
			Scores:         scores,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Scores.Composite != results[j].Scores.Composite {
			return results[i].Scores.Composite > results[j].Scores.Composite
		}
		if results[i].Establishment.RankCache.StaticRank != results[j].Establishment.RankCache.StaticRank {
			return results[i].Establishment.RankCache.StaticRank > results[j].Establishment.RankCache.StaticRank
		}
		return results[i].Establishment.ID < results[j].Establishment.ID
	})

	total := len(results)
	results = paginate(results, params.Offset, params.Limit)

	if s.metrics != nil {
		s.metrics.IncSearchesTotal()
		s.metrics.ObserveSearchDuration(time.Since(start).Seconds())
		s.metrics.ObserveResultCount(float64(total))
	}

	s.logger.Debug("search completed",
		"total", total,
		"returned", len(results),
		"radius_meters", params.RadiusMeters,
		"sort", string(weightsSort(params.Sort)))

	return &Page{Results: results, Total: total, Weights: weights}, nil
}

// score combines the per-request distance factor with the cached static
// factors. Records the updater has never ranked fall back to computing the
// static factors from live signals.
func (s *Service) score(e establishment.Establishment, distance, radius float64, w ranking.WeightSet) (ranking.Scores, error) {
	quality := e.RankCache.QualityScore
	sub := e.RankCache.SubscriptionScore

	if e.RankCache.UpdatedAt == nil {
		quality = ranking.QualityFactor(e.AverageRating, e.ReviewCount)
		var err error
		sub, err = ranking.SubscriptionFactor(e.Tier)
		if err != nil {
			return ranking.Scores{}, err
		}
	}

	distanceF := ranking.DistanceFactor(distance, radius)
	return ranking.Scores{
		Distance:     distanceF,
		Quality:      quality,
		Subscription: sub,
		Composite:    ranking.Composite(distanceF, quality, sub, w),
	}, nil
}

// mirrorLookup consults the rank mirror for one candidate. Misses and mirror
// failures fall back to the row cache.
func (s *Service) mirrorLookup(ctx context.Context, establishmentID string) (rankcache.Entry, bool) {
	if s.mirror == nil {
		return rankcache.Entry{}, false
	}
	entry, err := s.mirror.Get(ctx, establishmentID)
	if err != nil {
		if !errors.Is(err, rankcache.ErrMirrorMiss) {
			s.logger.Warn("rank mirror read failed",
				"establishment_id", establishmentID,
				"error", err)
		}
		if s.metrics != nil {
			s.metrics.IncMirrorMisses()
		}
		return rankcache.Entry{}, false
	}
	if s.metrics != nil {
		s.metrics.IncMirrorHits()
	}
	return entry, true
}

func paginate(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

func weightsSort(sort ranking.SortPreference) ranking.SortPreference {
	if sort == "" {
		return ranking.SortDefault
	}
	return sort
}
