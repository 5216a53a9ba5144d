package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/fashionstore/salepipe/internal/errors"
)

// Options configures the warehouse connection.
type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open opens and pings the relational store. driver is "pgx" or "sqlite3".
// Connectivity failures come back as retryable CONNECTIVITY errors so the
// caller's bounded retry policy applies.
func Open(ctx context.Context, driver, dsn string, opts Options) (*sql.DB, error) {
	if driver == "sqlite3" && !strings.Contains(dsn, "_foreign_keys") {
		// SQLite leaves FK enforcement off unless asked
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + "_foreign_keys=on"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, pkgerrors.NewConnectivityError(pkgerrors.CodeWarehouseUnavailable,
			"failed to open warehouse connection", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pkgerrors.NewConnectivityError(pkgerrors.CodeWarehouseUnavailable,
			"warehouse unreachable", err)
	}

	return db, nil
}

// Migrate executes the schema statements in dependency order. All
// statements are idempotent, so Migrate is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Rebind rewrites ?-style placeholders to the $N form pgx requires.
// Queries are written with ? (the SQLite form the tests run against) and
// rebound per driver at execution time.
func Rebind(driver, query string) string {
	if driver != "pgx" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err looks like a unique-constraint
// failure on either supported driver. pgx surfaces SQLSTATE 23505;
// go-sqlite3 reports "UNIQUE constraint failed".
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
