package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/dinefind/dinefind/internal/establishment"
	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/rankcache"
	"github.com/dinefind/dinefind/internal/ranking"
	"github.com/dinefind/dinefind/internal/subscription"
)

var testOrigin = geo.Point{Lat: 40.0, Lng: -3.70}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pointNorth returns a point the given number of meters due north of p.
func pointNorth(p geo.Point, meters float64) geo.Point {
	return geo.Point{Lat: p.Lat + meters/111195.0, Lng: p.Lng}
}

func newTestService(t *testing.T, establishments ...*establishment.Establishment) (*Service, *establishment.InMemoryRepository) {
	t.Helper()
	repo := establishment.NewInMemoryRepository()
	for _, e := range establishments {
		if err := repo.Insert(context.Background(), e); err != nil {
			t.Fatalf("seeding establishment %s: %v", e.ID, err)
		}
	}
	return NewService(repo, nil, ranking.DefaultCalibration(), quietLogger(), nil), repo
}

// fakeMirror is an in-memory RankMirror for tests. A nil entries map means
// every lookup misses; failing makes every lookup fail.
type fakeMirror struct {
	entries map[string]rankcache.Entry
	failing bool
	gets    int
}

func (m *fakeMirror) Get(_ context.Context, establishmentID string) (rankcache.Entry, error) {
	m.gets++
	if m.failing {
		return rankcache.Entry{}, errors.New("mirror unavailable")
	}
	entry, ok := m.entries[establishmentID]
	if !ok {
		return rankcache.Entry{}, rankcache.ErrMirrorMiss
	}
	return entry, nil
}

// ranked seeds an active establishment with a committed rank cache.
func ranked(id string, loc geo.Point, quality, sub float64, tier subscription.Tier) *establishment.Establishment {
	now := time.Now()
	return &establishment.Establishment{
		ID:       id,
		Location: loc,
		Tier:     tier,
		Active:   true,
		RankCache: establishment.RankCache{
			QualityScore:      quality,
			SubscriptionScore: sub,
			StaticRank:        ranking.StaticRank(quality, sub),
			UpdatedAt:         &now,
		},
	}
}

func TestSearchValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name   string
		params Params
	}{
		{"invalid origin", Params{Origin: geo.Point{Lat: 91, Lng: 0}, RadiusMeters: 1000}},
		{"zero radius", Params{Origin: testOrigin, RadiusMeters: 0}},
		{"negative radius", Params{Origin: testOrigin, RadiusMeters: -5}},
		{"radius too large", Params{Origin: testOrigin, RadiusMeters: MaxRadiusMeters + 1}},
		{"negative limit", Params{Origin: testOrigin, RadiusMeters: 1000, Limit: -1}},
		{"limit too large", Params{Origin: testOrigin, RadiusMeters: 1000, Limit: MaxLimit + 1}},
		{"negative offset", Params{Origin: testOrigin, RadiusMeters: 1000, Offset: -1}},
		{"negative velocity", Params{Origin: testOrigin, RadiusMeters: 1000, VelocityMPS: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Search(context.Background(), tt.params); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("expected ErrInvalidQuery, got %v", err)
			}
		})
	}
}

func TestSearchUnknownSortRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Search(context.Background(), Params{
		Origin:       testOrigin,
		RadiusMeters: 1000,
		Sort:         ranking.SortPreference("by_vibes"),
	})
	if !errors.Is(err, ranking.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestSearchRadiusFiltering(t *testing.T) {
	svc, _ := newTestService(t,
		ranked("near", pointNorth(testOrigin, 1000), 50, 0, subscription.TierFree),
		ranked("far", pointNorth(testOrigin, 8000), 50, 0, subscription.TierFree),
	)

	page, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Results[0].Establishment.ID != "near" {
		t.Errorf("expected only the near establishment, got %+v", page.Results)
	}
	if d := page.Results[0].DistanceMeters; math.Abs(d-1000) > 10 {
		t.Errorf("distance = %f, want about 1000", d)
	}
}

func TestSearchExcludesInactive(t *testing.T) {
	closed := ranked("closed", pointNorth(testOrigin, 500), 90, 50, subscription.TierPremium)
	closed.Active = false
	svc, _ := newTestService(t,
		closed,
		ranked("open", pointNorth(testOrigin, 500), 10, 0, subscription.TierFree),
	)

	page, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Results[0].Establishment.ID != "open" {
		t.Errorf("inactive establishment leaked into results: %+v", page.Results)
	}
}

func TestSearchDefaultOrdering(t *testing.T) {
	// a: distance factor 90, quality 90, free.
	// b: distance factor 20, quality 40, premium.
	svc, _ := newTestService(t,
		ranked("b", pointNorth(testOrigin, 4000), 40, 50, subscription.TierPremium),
		ranked("a", pointNorth(testOrigin, 500), 90, 0, subscription.TierFree),
	)

	page, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page.Results))
	}
	if page.Results[0].Establishment.ID != "a" {
		t.Errorf("expected a first, got %s", page.Results[0].Establishment.ID)
	}

	// Composite must equal the weighted factor sum the breakdown reports.
	for _, r := range page.Results {
		want := r.Scores.Distance*page.Weights.Distance +
			r.Scores.Quality*page.Weights.Quality +
			r.Scores.Subscription*page.Weights.Subscription
		if math.Abs(r.Scores.Composite-want) > 1e-9 {
			t.Errorf("%s composite = %f, want %f", r.Establishment.ID, r.Scores.Composite, want)
		}
	}
}

func TestSearchSortPreferenceChangesOrder(t *testing.T) {
	// Under default weights the distant high-quality spot wins; under
	// by_distance the close one does.
	svc, _ := newTestService(t,
		ranked("close", pointNorth(testOrigin, 500), 0, 0, subscription.TierFree),
		ranked("quality", pointNorth(testOrigin, 4500), 100, 0, subscription.TierFree),
	)

	base, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.Results[0].Establishment.ID != "quality" {
		t.Errorf("default sort: expected quality first, got %s", base.Results[0].Establishment.ID)
	}

	byDist, err := svc.Search(context.Background(), Params{
		Origin:       testOrigin,
		RadiusMeters: 5000,
		Sort:         ranking.SortByDistance,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byDist.Results[0].Establishment.ID != "close" {
		t.Errorf("by_distance sort: expected close first, got %s", byDist.Results[0].Establishment.ID)
	}
}

func TestSearchVelocityAdaptsWeights(t *testing.T) {
	svc, _ := newTestService(t,
		ranked("e1", pointNorth(testOrigin, 500), 50, 0, subscription.TierFree),
	)

	slow, err := svc.Search(context.Background(), Params{
		Origin: testOrigin, RadiusMeters: 5000, VelocityMPS: 1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slow.Weights != ranking.DefaultWeights() {
		t.Errorf("slow query weights = %+v, want defaults", slow.Weights)
	}

	fast, err := svc.Search(context.Background(), Params{
		Origin: testOrigin, RadiusMeters: 5000, VelocityMPS: 8.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fast.Weights.Distance != 0.50 {
		t.Errorf("fast query distance weight = %f, want 0.50", fast.Weights.Distance)
	}
}

func TestSearchUsesCachedFactorsUntilRecomputed(t *testing.T) {
	e := ranked("e1", pointNorth(testOrigin, 500), 10, 0, subscription.TierFree)
	e.AverageRating = 5.0
	e.ReviewCount = 400
	svc, repo := newTestService(t, e)

	params := Params{Origin: testOrigin, RadiusMeters: 5000}

	before, err := svc.Search(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before.Results[0].Scores.Quality != 10 {
		t.Errorf("quality = %f, want the cached 10 despite fresher live signals", before.Results[0].Scores.Quality)
	}

	// Simulate a recomputation commit; the next search must see it.
	now := time.Now()
	cache := establishment.RankCache{QualityScore: 100, SubscriptionScore: 0, StaticRank: 40, UpdatedAt: &now}
	if err := repo.UpdateRankCache(context.Background(), "e1", cache); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, err := svc.Search(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Results[0].Scores.Quality != 100 {
		t.Errorf("quality = %f, want 100 after recomputation", after.Results[0].Scores.Quality)
	}
}

func TestSearchScoresUnrankedRecordsFromLiveSignals(t *testing.T) {
	svc, _ := newTestService(t, &establishment.Establishment{
		ID:            "new",
		Location:      pointNorth(testOrigin, 500),
		AverageRating: 4.0,
		ReviewCount:   100,
		Tier:          subscription.TierStandard,
		Active:        true,
	})

	page, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 result, got %d", page.Total)
	}
	got := page.Results[0].Scores
	if math.Abs(got.Quality-65) > 1e-9 {
		t.Errorf("quality = %f, want 65 from live signals", got.Quality)
	}
	if got.Subscription != 35 {
		t.Errorf("subscription = %f, want 35", got.Subscription)
	}
}

func TestSearchPagination(t *testing.T) {
	// Five establishments at growing distances, identical static factors,
	// so the ranking is by distance factor alone.
	es := make([]*establishment.Establishment, 0, 5)
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	for i, id := range ids {
		es = append(es, ranked(id, pointNorth(testOrigin, float64(500+i*800)), 50, 0, subscription.TierFree))
	}
	svc, _ := newTestService(t, es...)

	page, err := svc.Search(context.Background(), Params{
		Origin: testOrigin, RadiusMeters: 5000, Limit: 2, Offset: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("total = %d, want 5", page.Total)
	}
	if len(page.Results) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Results))
	}
	if page.Results[0].Establishment.ID != "p3" || page.Results[1].Establishment.ID != "p4" {
		t.Errorf("unexpected page contents: %s, %s",
			page.Results[0].Establishment.ID, page.Results[1].Establishment.ID)
	}

	// Offset past the end yields an empty page with the full total.
	empty, err := svc.Search(context.Background(), Params{
		Origin: testOrigin, RadiusMeters: 5000, Limit: 2, Offset: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.Total != 5 || len(empty.Results) != 0 {
		t.Errorf("expected empty page with total 5, got total %d size %d", empty.Total, len(empty.Results))
	}
}

func TestSearchPrefersMirrorEntryOverRowCache(t *testing.T) {
	repo := establishment.NewInMemoryRepository()
	e := ranked("e1", pointNorth(testOrigin, 500), 10, 0, subscription.TierFree)
	if err := repo.Insert(context.Background(), e); err != nil {
		t.Fatalf("seeding establishment: %v", err)
	}

	mirror := &fakeMirror{entries: map[string]rankcache.Entry{
		"e1": {
			EstablishmentID:   "e1",
			QualityScore:      80,
			SubscriptionScore: 35,
			StaticRank:        ranking.StaticRank(80, 35),
			UpdatedAt:         time.Now(),
		},
	}}
	svc := NewService(repo, mirror, ranking.DefaultCalibration(), quietLogger(), nil)

	page, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mirror.gets != 1 {
		t.Errorf("mirror gets = %d, want 1", mirror.gets)
	}
	got := page.Results[0].Scores
	if got.Quality != 80 {
		t.Errorf("quality = %f, want the mirrored 80 over the row 10", got.Quality)
	}
	if got.Subscription != 35 {
		t.Errorf("subscription = %f, want the mirrored 35", got.Subscription)
	}
}

func TestSearchFallsBackToRowCacheOnMirrorMiss(t *testing.T) {
	repo := establishment.NewInMemoryRepository()
	e := ranked("e1", pointNorth(testOrigin, 500), 60, 0, subscription.TierFree)
	if err := repo.Insert(context.Background(), e); err != nil {
		t.Fatalf("seeding establishment: %v", err)
	}

	tests := []struct {
		name   string
		mirror *fakeMirror
	}{
		{"miss", &fakeMirror{}},
		{"failure", &fakeMirror{failing: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(repo, tt.mirror, ranking.DefaultCalibration(), quietLogger(), nil)

			page, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if page.Total != 1 {
				t.Fatalf("expected 1 result, got %d", page.Total)
			}
			if q := page.Results[0].Scores.Quality; q != 60 {
				t.Errorf("quality = %f, want the row cache 60", q)
			}
		})
	}
}

func TestSearchTieBreaksByID(t *testing.T) {
	// Identical location and factors: ordering falls through composite and
	// static rank to the ID.
	loc := pointNorth(testOrigin, 1000)
	svc, _ := newTestService(t,
		ranked("zzz", loc, 50, 0, subscription.TierFree),
		ranked("aaa", loc, 50, 0, subscription.TierFree),
	)

	page, err := svc.Search(context.Background(), Params{Origin: testOrigin, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Results[0].Establishment.ID != "aaa" {
		t.Errorf("expected aaa first on tie, got %s", page.Results[0].Establishment.ID)
	}
}
