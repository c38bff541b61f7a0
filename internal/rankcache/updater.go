package rankcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dinefind/dinefind/internal/establishment"
	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/ranking"
)

// Default update intervals per activity class. Active establishments have
// faster-moving quality signals and get shorter staleness windows.
const (
	DefaultActiveInterval   = 15 * time.Minute
	DefaultInactiveInterval = 60 * time.Minute
)

// DefaultTickInterval is the default period between due-record scans.
const DefaultTickInterval = time.Minute

// DefaultCycleTimeout is the default timeout for a single update cycle.
const DefaultCycleTimeout = 5 * time.Minute

// JobMetrics provides centralized background job metrics tracking.
// This interface allows the updater to report to the centralized job metrics system.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// UpdaterConfig configures the rank cache updater.
type UpdaterConfig struct {
	// TickInterval is the duration between due-record scans.
	TickInterval time.Duration
	// ActiveInterval is the refresh interval for active establishments.
	ActiveInterval time.Duration
	// InactiveInterval is the refresh interval for inactive establishments.
	InactiveInterval time.Duration
	// Timeout for each update cycle.
	Timeout time.Duration
	// Logger for updater activity.
	Logger *slog.Logger
	// Metrics for performance tracking.
	Metrics *Metrics
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
}

// Updater periodically recomputes the static ranking fields for
// establishments whose cached rank has gone stale. Each establishment is
// written independently so one failure never blocks the rest of the cycle.
type Updater struct {
	config UpdaterConfig
	repo   establishment.Repository
	mirror *Mirror

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewUpdater creates a rank cache updater. The mirror is optional; a nil
// mirror disables Redis mirroring.
func NewUpdater(config UpdaterConfig, repo establishment.Repository, mirror *Mirror) *Updater {
	if config.TickInterval == 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.ActiveInterval == 0 {
		config.ActiveInterval = DefaultActiveInterval
	}
	if config.InactiveInterval == 0 {
		config.InactiveInterval = DefaultInactiveInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultCycleTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Updater{
		config: config,
		repo:   repo,
		mirror: mirror,
	}
}

// Start begins the periodic update job.
// Returns immediately; the job runs in a background goroutine.
func (u *Updater) Start(ctx context.Context) error {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = true
	u.stopCh = make(chan struct{})
	u.doneCh = make(chan struct{})
	u.mu.Unlock()

	go u.run(ctx)
	return nil
}

// Stop signals the updater to stop and waits for it to finish.
func (u *Updater) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	stopCh := u.stopCh
	doneCh := u.doneCh
	u.mu.Unlock()

	close(stopCh)
	<-doneCh

	u.mu.Lock()
	u.running = false
	u.mu.Unlock()
}

// IsRunning returns whether the updater is currently running.
func (u *Updater) IsRunning() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// run is the main loop for the updater.
func (u *Updater) run(ctx context.Context) {
	defer close(u.doneCh)

	ticker := time.NewTicker(u.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.config.Logger.Info("rank cache updater stopping due to context cancellation")
			return
		case <-u.stopCh:
			u.config.Logger.Info("rank cache updater stopping due to stop signal")
			return
		case <-ticker.C:
			u.updateDueEstablishments(ctx)
		}
	}
}

// UpdateNow immediately runs one update cycle without waiting for the ticker.
// This is useful for testing or forcing immediate updates.
func (u *Updater) UpdateNow(ctx context.Context) {
	u.updateDueEstablishments(ctx)
}

// updateDueEstablishments recomputes cached ranks for every establishment
// whose refresh interval has elapsed.
func (u *Updater) updateDueEstablishments(parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, u.config.Timeout)
	defer cancel()

	all, err := u.repo.ListForRanking(ctx)
	if err != nil {
		u.config.Logger.Error("failed to list establishments for ranking", "error", err)
		if u.config.Metrics != nil {
			u.config.Metrics.IncUpdateErrors()
		}
		if u.config.JobMetrics != nil {
			u.config.JobMetrics.IncJobErrors("rank_update", "list_error")
		}
		return
	}

	now := time.Now()
	var due []establishment.Establishment
	for _, e := range all {
		if e.RankDue(now, u.config.ActiveInterval, u.config.InactiveInterval) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return
	}

	startTime := time.Now()
	total := len(due)
	var successCount int

	u.config.Logger.Info("updating rank caches", "due_count", total)

	for i, e := range due {
		select {
		case <-ctx.Done():
			u.config.Logger.Error("rank update cycle timeout exceeded",
				"processed", i,
				"total", total,
				"timeout", u.config.Timeout)
			u.finishCycle(startTime, successCount, total)
			if u.config.JobMetrics != nil {
				u.config.JobMetrics.IncJobErrors("rank_update", "timeout")
			}
			return
		default:
		}

		if err := u.updateOne(ctx, e, now); err != nil {
			u.config.Logger.Error("failed to update rank cache",
				"establishment_id", e.ID,
				"error", err)
			if u.config.Metrics != nil {
				u.config.Metrics.IncUpdateErrors()
			}
			if u.config.JobMetrics != nil {
				u.config.JobMetrics.IncJobErrors("rank_update", "update_error")
			}
			continue
		}
		successCount++

		// Log batch progress every 100 establishments
		if (i+1)%100 == 0 {
			u.config.Logger.Debug("rank update progress",
				"processed", i+1,
				"total", total)
		}
	}

	u.finishCycle(startTime, successCount, total)
}

// finishCycle records cycle-level metrics and the completion log.
func (u *Updater) finishCycle(startTime time.Time, successCount, total int) {
	duration := time.Since(startTime).Seconds()

	status := "success"
	if successCount < total {
		status = "failure"
	}

	if u.config.Metrics != nil {
		u.config.Metrics.IncCyclesTotal()
		u.config.Metrics.ObserveCycleDuration(duration)
		u.config.Metrics.SetLastCycleTimestamp(float64(time.Now().Unix()))
		u.config.Metrics.SetLastCycleUpdateCount(float64(successCount))
	}
	if u.config.JobMetrics != nil {
		u.config.JobMetrics.IncJobsTotal("rank_update", status)
		u.config.JobMetrics.ObserveJobDuration("rank_update", duration)
	}

	u.config.Logger.Info("rank update cycle completed",
		"duration_seconds", duration,
		"updated", successCount,
		"failed", total-successCount)
}

// updateOne recomputes and persists the cached rank for a single
// establishment, then mirrors it to Redis.
func (u *Updater) updateOne(ctx context.Context, e establishment.Establishment, now time.Time) error {
	quality := ranking.QualityFactor(e.AverageRating, e.ReviewCount)
	sub, err := ranking.SubscriptionFactor(e.Tier)
	if err != nil {
		return err
	}

	cache := establishment.RankCache{
		QualityScore:      quality,
		SubscriptionScore: sub,
		StaticRank:        ranking.StaticRank(quality, sub),
		UpdatedAt:         &now,
	}
	if err := u.repo.UpdateRankCache(ctx, e.ID, cache); err != nil {
		return err
	}

	if u.mirror != nil {
		entry := Entry{
			EstablishmentID:   e.ID,
			QualityScore:      cache.QualityScore,
			SubscriptionScore: cache.SubscriptionScore,
			StaticRank:        cache.StaticRank,
			UpdatedAt:         now,
			Region:            geo.EncodeRegion(e.Location, geo.RegionPrecision),
		}
		if err := u.mirror.Put(ctx, entry); err != nil {
			// The database write already succeeded; a mirror failure
			// only degrades read performance.
			u.config.Logger.Warn("failed to mirror rank cache entry",
				"establishment_id", e.ID,
				"error", err)
			if u.config.Metrics != nil {
				u.config.Metrics.IncMirrorErrors()
			}
		}
	}

	u.config.Logger.Debug("rank cache updated",
		"establishment_id", e.ID,
		"quality", cache.QualityScore,
		"subscription", cache.SubscriptionScore,
		"static_rank", cache.StaticRank)

	return nil
}
