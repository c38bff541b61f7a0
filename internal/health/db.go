// Package health implements the dependency checks behind the readiness
// endpoint. Each checker answers one question: can this dependency serve
// a request right now.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// checkTimeout bounds each dependency check so a hung dependency cannot
// stall the readiness endpoint.
const checkTimeout = 2 * time.Second

// DBChecker reports whether the Postgres pool can reach the database that
// holds establishments, rank rows, and refresh tokens.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a checker over an open connection pool.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database within the check timeout.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
