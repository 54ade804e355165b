// Package repository stores the broker directory in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"broker_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const brokerNotFoundMsg = "broker not found"

// Repository provides database operations for brokers.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new brokers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Broker is a directory entry with its coverage.
type Broker struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	DisplayName   string
	Email         string
	Phone         *string
	Active        bool
	ApprovedAt    *time.Time
	DirectoryRank int
	Territories   []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// brokerSelect aggregates coverage so every read returns complete brokers.
const brokerSelect = `
	SELECT b.id, b.user_id, b.display_name, b.email, b.phone, b.active, b.approved_at,
	       b.directory_rank, b.created_at, b.updated_at,
	       COALESCE(array_agg(t.territory ORDER BY t.territory) FILTER (WHERE t.territory IS NOT NULL), '{}') AS territories
	FROM brokers b
	LEFT JOIN broker_territories t ON t.broker_id = b.id`

const brokerGroupOrder = `
	GROUP BY b.id
	ORDER BY b.directory_rank, b.created_at, b.id`

func scanBroker(row pgx.Row) (Broker, error) {
	var b Broker
	err := row.Scan(&b.ID, &b.UserID, &b.DisplayName, &b.Email, &b.Phone, &b.Active, &b.ApprovedAt,
		&b.DirectoryRank, &b.CreatedAt, &b.UpdatedAt, &b.Territories)
	return b, err
}

func (r *Repository) queryBrokers(ctx context.Context, op, query string, args ...any) ([]Broker, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	brokers := make([]Broker, 0)
	for rows.Next() {
		b, err := scanBroker(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		brokers = append(brokers, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return brokers, nil
}

// Create inserts a broker without coverage.
func (r *Repository) Create(ctx context.Context, b Broker) (Broker, error) {
	query := `
		INSERT INTO brokers (id, user_id, display_name, email, phone, active, approved_at, directory_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		b.ID, b.UserID, b.DisplayName, b.Email, b.Phone, b.Active, b.ApprovedAt, b.DirectoryRank,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Broker{}, fmt.Errorf("create broker: %w", err)
	}
	b.Territories = []string{}
	return b, nil
}

// UpsertByUserID creates or refreshes the broker linked to b.UserID.
func (r *Repository) UpsertByUserID(ctx context.Context, b Broker) (Broker, error) {
	query := `
		INSERT INTO brokers (id, user_id, display_name, email, phone, active, approved_at, directory_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			active = EXCLUDED.active,
			directory_rank = EXCLUDED.directory_rank,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		b.ID, b.UserID, b.DisplayName, b.Email, b.Phone, b.Active, b.ApprovedAt, b.DirectoryRank,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Broker{}, fmt.Errorf("upsert broker: %w", err)
	}
	return b, nil
}

// GetByID retrieves a broker with coverage.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Broker, error) {
	b, err := scanBroker(r.pool.QueryRow(ctx, brokerSelect+` WHERE b.id = $1`+brokerGroupOrder, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Broker{}, apperr.NotFound(brokerNotFoundMsg)
	}
	if err != nil {
		return Broker{}, fmt.Errorf("get broker: %w", err)
	}
	return b, nil
}

// GetByUserID retrieves the broker linked to a login.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (Broker, error) {
	b, err := scanBroker(r.pool.QueryRow(ctx, brokerSelect+` WHERE b.user_id = $1`+brokerGroupOrder, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Broker{}, apperr.NotFound(brokerNotFoundMsg)
	}
	if err != nil {
		return Broker{}, fmt.Errorf("get broker by user: %w", err)
	}
	return b, nil
}

// List returns every broker in directory order.
func (r *Repository) List(ctx context.Context) ([]Broker, error) {
	return r.queryBrokers(ctx, "list brokers", brokerSelect+brokerGroupOrder)
}

// ListForTerritory returns brokers covering territory in directory order.
func (r *Repository) ListForTerritory(ctx context.Context, territory string) ([]Broker, error) {
	query := brokerSelect + `
		WHERE EXISTS (
			SELECT 1 FROM broker_territories c WHERE c.broker_id = b.id AND c.territory = $1
		)` + brokerGroupOrder
	return r.queryBrokers(ctx, "list brokers for territory", query, territory)
}

// ReplaceTerritories swaps a broker's coverage atomically.
func (r *Repository) ReplaceTerritories(ctx context.Context, brokerID uuid.UUID, territories []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace territories: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE brokers SET updated_at = now() WHERE id = $1`, brokerID)
	if err != nil {
		return fmt.Errorf("touch broker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(brokerNotFoundMsg)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM broker_territories WHERE broker_id = $1`, brokerID); err != nil {
		return fmt.Errorf("clear territories: %w", err)
	}
	if len(territories) > 0 {
		_, err := tx.Exec(ctx, `
			INSERT INTO broker_territories (broker_id, territory)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING`, brokerID, territories)
		if err != nil {
			return fmt.Errorf("insert territories: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace territories: %w", err)
	}
	return nil
}

// SetActive toggles whether a broker receives new referrals.
func (r *Repository) SetActive(ctx context.Context, brokerID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE brokers
		SET active = $2,
		    approved_at = CASE WHEN $2 AND approved_at IS NULL THEN now() ELSE approved_at END,
		    updated_at = now()
		WHERE id = $1`, brokerID, active)
	if err != nil {
		return fmt.Errorf("set broker active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(brokerNotFoundMsg)
	}
	return nil
}
