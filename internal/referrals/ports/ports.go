// Package ports defines what the referral engine needs from storage and from
// the broker directory. Implementations are wired in the composition root so
// the engine never imports the brokers context directly.
package ports

import (
	"context"
	"time"

	"broker_portal_backend/internal/referrals/domain"

	"github.com/google/uuid"
)

// LeadFilter narrows ListLeads. Zero values mean "any".
type LeadFilter struct {
	Status   *domain.Status
	BrokerID *uuid.UUID
	Limit    int
	Offset   int
}

// LeadStore persists leads and consultations.
type LeadStore interface {
	CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	// ConditionalUpdateLead writes next only if the stored lead still matches
	// expected. On mismatch it returns domain.ErrStaleState and changes nothing.
	// The returned lead carries the bumped version.
	ConditionalUpdateLead(ctx context.Context, expected domain.Expected, next domain.Lead) (domain.Lead, error)
	// InsertConsultation is idempotent per lead: a second insert for the same
	// lead leaves the first record in place and returns it.
	InsertConsultation(ctx context.Context, c domain.Consultation) (domain.Consultation, error)
	ListOverdueReferrals(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error)
	// ListStrandedLeads returns declined or expired leads last touched before
	// updatedBefore. These are leads whose automatic reassignment never ran.
	ListStrandedLeads(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]domain.Lead, error)
}

// BrokerDirectory answers which brokers can take work in a territory.
type BrokerDirectory interface {
	// ListBrokersForTerritory returns brokers covering territory in directory order.
	ListBrokersForTerritory(ctx context.Context, territory string) ([]domain.Broker, error)
	GetBroker(ctx context.Context, id uuid.UUID) (domain.Broker, error)
	GetBrokerByUserID(ctx context.Context, userID uuid.UUID) (domain.Broker, error)
}

// EventAppender is the append-only activity log.
type EventAppender interface {
	AppendEvent(ctx context.Context, event domain.Event) error
	ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.Event, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
