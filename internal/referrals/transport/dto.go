package transport

import (
	"time"

	"github.com/google/uuid"
)

type CreateLeadRequest struct {
	CustomerRef uuid.UUID  `json:"customerRef" validate:"required"`
	Territory   string     `json:"territory" validate:"required,territory"`
	PropertyRef *uuid.UUID `json:"propertyRef,omitempty"`
	AutoAssign  bool       `json:"autoAssign"`
}

type AssignRequest struct {
	BrokerID *uuid.UUID `json:"brokerId,omitempty"`
}

type AcceptRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type DeclineRequest struct {
	Reason string  `json:"reason" validate:"required,oneof=at_capacity outside_territory conflict_of_interest not_interested other"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type ListLeadsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=unassigned referred accepted declined expired pending_reassignment"`
	BrokerID string `form:"brokerId" validate:"omitempty,uuid"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=500"`
	Offset   int    `form:"offset" validate:"omitempty,min=0"`
}

type LeadResponse struct {
	ID                uuid.UUID   `json:"id"`
	CustomerRef       uuid.UUID   `json:"customerRef"`
	Territory         string      `json:"territory"`
	PropertyRef       *uuid.UUID  `json:"propertyRef,omitempty"`
	Status            string      `json:"status"`
	AssignedBrokerID  *uuid.UUID  `json:"assignedBrokerId,omitempty"`
	ReferredAt        *time.Time  `json:"referredAt,omitempty"`
	AcceptedAt        *time.Time  `json:"acceptedAt,omitempty"`
	DeclinedAt        *time.Time  `json:"declinedAt,omitempty"`
	ExpiredAt         *time.Time  `json:"expiredAt,omitempty"`
	ReferralExpiresAt *time.Time  `json:"referralExpiresAt,omitempty"`
	DeclineReason     *string     `json:"declineReason,omitempty"`
	DeclineNotes      *string     `json:"declineNotes,omitempty"`
	AcceptNotes       *string     `json:"acceptNotes,omitempty"`
	TriedBrokerIDs    []uuid.UUID `json:"triedBrokerIds"`
	Version           int         `json:"version"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

type ConsultationResponse struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"leadId"`
	BrokerID    uuid.UUID `json:"brokerId"`
	CustomerRef uuid.UUID `json:"customerRef"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LifecycleResponse is returned by every state-changing referral endpoint.
type LifecycleResponse struct {
	Lead                  LeadResponse          `json:"lead"`
	Outcome               string                `json:"outcome"`
	Reason                string                `json:"reason,omitempty"`
	NeedsManualAssignment bool                  `json:"needsManualAssignment"`
	Consultation          *ConsultationResponse `json:"consultation,omitempty"`
	Reassignment          *LifecycleResponse    `json:"reassignment,omitempty"`
}

type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
}

type EventResponse struct {
	ID         uuid.UUID      `json:"id"`
	LeadID     uuid.UUID      `json:"leadId"`
	Type       string         `json:"type"`
	FromStatus *string        `json:"fromStatus,omitempty"`
	ToStatus   *string        `json:"toStatus,omitempty"`
	ActorType  string         `json:"actorType"`
	ActorID    *uuid.UUID     `json:"actorId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type EventListResponse struct {
	Items []EventResponse `json:"items"`
}
