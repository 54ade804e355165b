// Package repository stores referral leads, consultations, and the activity
// log in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"

	"broker_portal_backend/platform/apperr"
	"broker_portal_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadNotFoundMsg = "lead not found"

// Querier is the subset of pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides database operations for referrals.
type Repository struct {
	pool Querier
}

// New creates a new referrals repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// rowScanner is satisfied by pgx.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// classify marks timeouts and dropped connections as Unavailable so callers
// can retry; everything else is wrapped with the operation name.
func classify(op string, err error) error {
	if db.IsTransient(err) {
		return apperr.Unavailable("referral store unavailable", err).WithOp(op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
