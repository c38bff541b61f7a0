package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

const tokenColumns = `id, value, user_id, issued_at, expires_at, used_at, replaced_by`

// Create stores a new live token.
func (s *PostgresStore) Create(ctx context.Context, t *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, value, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, t.ID, t.Value, t.UserID, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// GetByValue retrieves a token by its opaque value.
func (s *PostgresStore) GetByValue(ctx context.Context, value string) (*RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE value = $1`
	t, err := scanToken(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return t, nil
}

// Rotate consumes the token and creates its successor in one transaction.
// The conditional UPDATE on used_at IS NULL is the compare-and-swap: a
// concurrent rotation of the same token makes the second UPDATE match zero
// rows.
func (s *PostgresStore) Rotate(ctx context.Context, id string, usedAt time.Time, successor *RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("failed to rollback token rotation", "error", rbErr)
		}
	}()

	consume := `
		UPDATE refresh_tokens
		SET used_at = $1, replaced_by = $2
		WHERE id = $3 AND used_at IS NULL
	`
	res, err := tx.ExecContext(ctx, consume, usedAt, successor.ID, id)
	if err != nil {
		return fmt.Errorf("failed to consume refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check consumed rows: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check refresh token existence: %w", err)
		}
		if !exists {
			return ErrTokenNotFound
		}
		return ErrAlreadyConsumed
	}

	insert := `
		INSERT INTO refresh_tokens (id, value, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.ExecContext(ctx, insert,
		successor.ID, successor.Value, successor.UserID,
		successor.IssuedAt, successor.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token rotation: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live token for the user. A single UPDATE
// makes the fan-out atomic, and the used_at IS NULL filter makes retries
// idempotent.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, usedAt time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET used_at = $1
		WHERE user_id = $2 AND used_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, usedAt, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		s.logger.Debug("revoked user tokens", "user_id", userID, "count", affected)
	}
	return nil
}

// Invalidate consumes a live token without a successor.
func (s *PostgresStore) Invalidate(ctx context.Context, id string, usedAt time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET used_at = $1
		WHERE id = $2 AND used_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, usedAt, id); err != nil {
		return fmt.Errorf("failed to invalidate refresh token: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is before the cutoff. Expired
// tokens can never be rotated, so deleting them loses no security state.
// Returns the number of rows removed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted refresh tokens: %w", err)
	}
	return n, nil
}

// ListByUser returns all tokens for a user, any state.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE user_id = $1 ORDER BY issued_at`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user tokens: %w", err)
	}
	defer rows.Close()

	var out []RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user tokens: %w", err)
	}
	return out, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*RefreshToken, error) {
	var t RefreshToken
	var usedAt sql.NullTime
	var replacedBy sql.NullString

	err := row.Scan(&t.ID, &t.Value, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &usedAt, &replacedBy)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	if replacedBy.Valid {
		t.ReplacedBy = &replacedBy.String
	}
	return &t, nil
}
