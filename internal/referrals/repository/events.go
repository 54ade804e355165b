package repository

import (
	"context"
	"encoding/json"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"

	"github.com/google/uuid"
)

// AppendEvent inserts one activity log entry.
func (r *Repository) AppendEvent(ctx context.Context, event domain.Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO referral_events (id, lead_id, event_type, from_status, to_status, actor_type, actor_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.LeadID, string(event.Type),
		statusText(event.FromStatus), statusText(event.ToStatus),
		string(event.Actor.Type), event.Actor.ID, metadataJSON, event.CreatedAt,
	)
	if err != nil {
		return classify("append referral event", err)
	}
	return nil
}

// ListEvents returns a lead's events oldest first.
func (r *Repository) ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, event_type, from_status, to_status, actor_type, actor_id, metadata, created_at
		FROM referral_events
		WHERE lead_id = $1
		ORDER BY created_at, id`, leadID)
	if err != nil {
		return nil, classify("list referral events", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			e           domain.Event
			eventType   string
			from, to    *string
			actorType   string
			rawMetadata []byte
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &eventType, &from, &to, &actorType, &e.Actor.ID, &rawMetadata, &e.CreatedAt); err != nil {
			return nil, classify("scan referral event", err)
		}
		e.Type = domain.EventType(eventType)
		e.Actor.Type = domain.ActorType(actorType)
		e.FromStatus = statusPtr(from)
		e.ToStatus = statusPtr(to)
		if len(rawMetadata) > 0 {
			if err := json.Unmarshal(rawMetadata, &e.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list referral events", err)
	}
	return events, nil
}

func statusText(s *domain.Status) *string {
	if s == nil {
		return nil
	}
	text := string(*s)
	return &text
}

func statusPtr(s *string) *domain.Status {
	if s == nil {
		return nil
	}
	status := domain.Status(*s)
	return &status
}

var _ ports.EventAppender = (*Repository)(nil)
