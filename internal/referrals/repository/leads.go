package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

const leadColumns = `
	id, customer_ref, territory, property_ref, status, assigned_broker_id,
	referred_at, accepted_at, declined_at, expired_at, referral_expires_at,
	decline_reason, decline_notes, accept_notes, tried_broker_ids,
	version, created_at, updated_at`

func scanLead(s rowScanner) (domain.Lead, error) {
	var (
		lead          domain.Lead
		status        string
		declineReason *string
		tried         []uuid.UUID
	)
	err := s.Scan(
		&lead.ID, &lead.CustomerRef, &lead.Territory, &lead.PropertyRef, &status, &lead.AssignedBrokerID,
		&lead.ReferredAt, &lead.AcceptedAt, &lead.DeclinedAt, &lead.ExpiredAt, &lead.ReferralExpiresAt,
		&declineReason, &lead.DeclineNotes, &lead.AcceptNotes, &tried,
		&lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Status = domain.Status(status)
	if declineReason != nil {
		r := domain.DeclineReason(*declineReason)
		lead.DeclineReason = &r
	}
	lead.TriedBrokerIDs = tried
	return lead, nil
}

func triedOrEmpty(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func declineReasonText(r *domain.DeclineReason) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

// CreateLead inserts a lead in its initial state.
func (r *Repository) CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	query := `
		INSERT INTO referrals (id, customer_ref, territory, property_ref, status, tried_broker_ids, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		RETURNING ` + leadColumns

	created, err := scanLead(r.pool.QueryRow(ctx, query,
		lead.ID, lead.CustomerRef, lead.Territory, lead.PropertyRef, string(lead.Status),
		triedOrEmpty(lead.TriedBrokerIDs), lead.CreatedAt,
	))
	if err != nil {
		return domain.Lead{}, classify("create lead", err)
	}
	return created, nil
}

// GetLead retrieves a lead by ID.
func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM referrals WHERE id = $1`, id))
	if isNoRows(err) {
		return domain.Lead{}, apperr.NotFound(leadNotFoundMsg)
	}
	if err != nil {
		return domain.Lead{}, classify("get lead", err)
	}
	return lead, nil
}

// ConditionalUpdateLead writes every mutable column of next, guarded by the
// expected status and version. A miss returns domain.ErrStaleState.
func (r *Repository) ConditionalUpdateLead(ctx context.Context, expected domain.Expected, next domain.Lead) (domain.Lead, error) {
	query := `
		UPDATE referrals SET
			status = $3,
			assigned_broker_id = $4,
			referred_at = $5,
			accepted_at = $6,
			declined_at = $7,
			expired_at = $8,
			referral_expires_at = $9,
			decline_reason = $10,
			decline_notes = $11,
			accept_notes = $12,
			tried_broker_ids = $13,
			version = version + 1,
			updated_at = $14
		WHERE id = $1 AND status = $2 AND version = $15
		RETURNING ` + leadColumns

	updated, err := scanLead(r.pool.QueryRow(ctx, query,
		next.ID, string(expected.Status), string(next.Status), next.AssignedBrokerID,
		next.ReferredAt, next.AcceptedAt, next.DeclinedAt, next.ExpiredAt, next.ReferralExpiresAt,
		declineReasonText(next.DeclineReason), next.DeclineNotes, next.AcceptNotes,
		triedOrEmpty(next.TriedBrokerIDs), next.UpdatedAt, expected.Version,
	))
	if isNoRows(err) {
		return domain.Lead{}, r.missReason(ctx, next.ID)
	}
	if err != nil {
		return domain.Lead{}, classify("conditional update lead", err)
	}
	return updated, nil
}

// missReason tells a vanished lead apart from a lost race.
func (r *Repository) missReason(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM referrals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return classify("check lead exists", err)
	}
	if !exists {
		return apperr.NotFound(leadNotFoundMsg)
	}
	return domain.ErrStaleState
}

// InsertConsultation creates the consultation for a lead once.
func (r *Repository) InsertConsultation(ctx context.Context, c domain.Consultation) (domain.Consultation, error) {
	const columns = `id, lead_id, broker_id, customer_ref, property_ref, territory, status, notes, created_at`
	scan := func(s rowScanner) (domain.Consultation, error) {
		var out domain.Consultation
		err := s.Scan(&out.ID, &out.LeadID, &out.BrokerID, &out.CustomerRef, &out.PropertyRef,
			&out.Territory, &out.Status, &out.Notes, &out.CreatedAt)
		return out, err
	}

	inserted, err := scan(r.pool.QueryRow(ctx, `
		INSERT INTO consultations (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (lead_id) DO NOTHING
		RETURNING `+columns,
		c.ID, c.LeadID, c.BrokerID, c.CustomerRef, c.PropertyRef, c.Territory, c.Status, c.Notes, c.CreatedAt,
	))
	if err == nil {
		return inserted, nil
	}
	if !isNoRows(err) {
		return domain.Consultation{}, classify("insert consultation", err)
	}

	existing, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM consultations WHERE lead_id = $1`, c.LeadID))
	if err != nil {
		return domain.Consultation{}, classify("get consultation", err)
	}
	return existing, nil
}

// ListOverdueReferrals returns referred leads whose deadline is before now, oldest deadline first.
func (r *Repository) ListOverdueReferrals(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	return r.queryLeads(ctx, "list overdue referrals", `
		SELECT `+leadColumns+`
		FROM referrals
		WHERE status = 'referred' AND referral_expires_at < $1
		ORDER BY referral_expires_at
		LIMIT $2`, now, limit)
}

// ListStrandedLeads returns declined or expired leads untouched since updatedBefore.
func (r *Repository) ListStrandedLeads(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Lead, error) {
	return r.queryLeads(ctx, "list stranded leads", `
		SELECT `+leadColumns+`
		FROM referrals
		WHERE status IN ('declined', 'expired') AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, updatedBefore, limit)
}

// ListLeads returns leads matching filter, newest first.
func (r *Repository) ListLeads(ctx context.Context, filter ports.LeadFilter) ([]domain.Lead, error) {
	query, args := buildListLeadsQuery(filter)
	return r.queryLeads(ctx, "list leads", query, args...)
}

const defaultListLimit = 100

func buildListLeadsQuery(filter ports.LeadFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.BrokerID != nil {
		args = append(args, *filter.BrokerID)
		conds = append(conds, fmt.Sprintf("assigned_broker_id = $%d", len(args)))
	}

	query := `SELECT ` + leadColumns + ` FROM referrals`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, max(filter.Offset, 0))
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return query, args
}

func (r *Repository) queryLeads(ctx context.Context, op, query string, args ...any) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return leads, nil
}

var _ ports.LeadStore = (*Repository)(nil)
