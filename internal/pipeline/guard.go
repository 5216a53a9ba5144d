package pipeline

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fashionstore/salepipe/internal/errors"
	"github.com/fashionstore/salepipe/internal/warehouse"
)

// GuardOutcome is the LoadGuard decision for a target date.
type GuardOutcome string

const (
	// AlreadyLoaded means sales for the date exist; the run skips.
	AlreadyLoaded GuardOutcome = "ALREADY_LOADED"
	// Pending means no sales for the date exist yet; the run proceeds.
	Pending GuardOutcome = "PENDING"
)

// LoadGuard checks whether a date has already been loaded. It is a
// best-effort fast path; the load_batch ledger's unique constraint is the
// authoritative duplicate-load barrier.
type LoadGuard struct {
	db         *sql.DB
	driver     string
	maxRetries int
	backoff    time.Duration
	log        *logrus.Entry
}

// NewLoadGuard creates a guard over the warehouse connection.
func NewLoadGuard(db *sql.DB, driver string, maxRetries int, backoff time.Duration, log *logrus.Entry) *LoadGuard {
	return &LoadGuard{db: db, driver: driver, maxRetries: maxRetries, backoff: backoff, log: log}
}

// Check queries the sale table for rows on the target date. Connectivity
// failures are retried with exponential backoff up to the configured
// maximum, then surfaced as a retryable CONNECTIVITY error.
func (g *LoadGuard) Check(ctx context.Context, date LoadDate) (GuardOutcome, error) {
	query := warehouse.Rebind(g.driver, `SELECT EXISTS(SELECT 1 FROM sale WHERE sale_date = ?)`)

	var exists bool
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		lastErr = g.db.QueryRowContext(ctx, query, date.ISO()).Scan(&exists)
		if lastErr == nil {
			if exists {
				g.log.WithField("date", date.ISO()).Warn("date already loaded, skipping")
				return AlreadyLoaded, nil
			}
			return Pending, nil
		}

		if attempt < g.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * g.backoff
			g.log.WithError(lastErr).WithField("attempt", attempt+1).
				Warn("load guard query failed, retrying")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
		"failed to check whether date is already loaded", lastErr)
}
