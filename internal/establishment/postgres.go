package establishment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dinefind/dinefind/internal/geo"
	"github.com/dinefind/dinefind/internal/subscription"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const establishmentColumns = `
	id, name, lat, lng, average_rating, review_count, subscription_tier,
	active, quality_score, subscription_score, static_rank, rank_updated_at,
	created_at, updated_at
`

// Insert stores a new establishment, assigning an ID if absent.
func (r *PostgresRepository) Insert(ctx context.Context, e *Establishment) error {
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

	query := `
		INSERT INTO establishments (
			id, name, lat, lng, average_rating, review_count,
			subscription_tier, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Name, e.Location.Lat, e.Location.Lng,
		e.AverageRating, e.ReviewCount, string(e.Tier), e.Active,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert establishment: %w", err)
	}
	return nil
}

// GetByID retrieves an establishment by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Establishment, error) {
	query := `SELECT ` + establishmentColumns + ` FROM establishments WHERE id = $1`
	e, err := scanEstablishment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get establishment: %w", err)
	}
	return e, nil
}

// ListForRanking returns every establishment for the rank cache updater.
func (r *PostgresRepository) ListForRanking(ctx context.Context) ([]Establishment, error) {
	query := `SELECT ` + establishmentColumns + ` FROM establishments ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list establishments: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	return collectEstablishments(rows)
}

// FindWithin returns establishments inside the bounding box.
// The box pre-filter runs in SQL against the lat/lng index; exact radius
// filtering is the caller's job.
func (r *PostgresRepository) FindWithin(ctx context.Context, box geo.BoundingBox) ([]Establishment, error) {
	query := `
		SELECT ` + establishmentColumns + `
		FROM establishments
		WHERE lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4
	`
	rows, err := r.db.QueryContext(ctx, query, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, fmt.Errorf("failed to query establishments in box: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	return collectEstablishments(rows)
}

// UpdateRankCache atomically writes the cached ranking fields for one
// establishment. The row is locked for the duration of the write so
// concurrent updater runs for the same establishment cannot interleave.
func (r *PostgresRepository) UpdateRankCache(ctx context.Context, id string, cache RankCache) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	var locked string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM establishments WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock establishment row: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE establishments
		SET quality_score = $2, subscription_score = $3, static_rank = $4, rank_updated_at = $5
		WHERE id = $1
	`, id, cache.QualityScore, cache.SubscriptionScore, cache.StaticRank, cache.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update rank cache: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rank cache update: %w", err)
	}
	return nil
}

// UpdateQualitySignals applies a review-driven rating mutation.
func (r *PostgresRepository) UpdateQualitySignals(ctx context.Context, id string, averageRating float64, reviewCount int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE establishments
		SET average_rating = $2, review_count = $3, updated_at = NOW()
		WHERE id = $1
	`, id, averageRating, reviewCount)
	if err != nil {
		return fmt.Errorf("failed to update quality signals: %w", err)
	}
	return checkAffected(result)
}

// UpdateSubscriptionTier applies a purchased tier.
func (r *PostgresRepository) UpdateSubscriptionTier(ctx context.Context, id string, tier subscription.Tier) error {
	if !tier.Valid() {
		return subscription.ErrUnknownTier
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE establishments
		SET subscription_tier = $2, updated_at = NOW()
		WHERE id = $1
	`, id, string(tier))
	if err != nil {
		return fmt.Errorf("failed to update subscription tier: %w", err)
	}
	return checkAffected(result)
}

// UpdateProfile applies a partial update of profile fields.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, name *string, active *bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE establishments
		SET name = COALESCE($2, name), active = COALESCE($3, active), updated_at = NOW()
		WHERE id = $1
	`, id, name, active)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return checkAffected(result)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEstablishment scans one establishment row.
func scanEstablishment(row rowScanner) (*Establishment, error) {
	var e Establishment
	var tier string
	var rankUpdatedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.Name, &e.Location.Lat, &e.Location.Lng,
		&e.AverageRating, &e.ReviewCount, &tier, &e.Active,
		&e.RankCache.QualityScore, &e.RankCache.SubscriptionScore,
		&e.RankCache.StaticRank, &rankUpdatedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	parsed, err := subscription.ParseTier(tier)
	if err != nil {
		return nil, fmt.Errorf("establishment %s: %w", e.ID, err)
	}
	e.Tier = parsed

	if rankUpdatedAt.Valid {
		t := rankUpdatedAt.Time
		e.RankCache.UpdatedAt = &t
	}
	return &e, nil
}

// collectEstablishments drains a result set.
func collectEstablishments(rows *sql.Rows) ([]Establishment, error) {
	var result []Establishment
	for rows.Next() {
		e, err := scanEstablishment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan establishment: %w", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate establishments: %w", err)
	}
	return result, nil
}

// checkAffected converts a zero-row update into ErrNotFound.
func checkAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
