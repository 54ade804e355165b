// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"broker_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Referral Domain Events
// =============================================================================

// ReferralCreated is published when a lead enters intake.
type ReferralCreated struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	Territory string    `json:"territory"`
}

func (e ReferralCreated) EventName() string { return "referrals.lead.created" }

// ReferralAssigned is published when a lead is handed to a broker.
type ReferralAssigned struct {
	BaseEvent
	LeadID    uuid.UUID  `json:"leadId"`
	BrokerID  uuid.UUID  `json:"brokerId"`
	Territory string     `json:"territory"`
	ExpiresAt time.Time  `json:"expiresAt"`
	ActorType string     `json:"actorType"`
	ActorID   *uuid.UUID `json:"actorId,omitempty"`
}

func (e ReferralAssigned) EventName() string { return "referrals.lead.assigned" }

// ReferralAccepted is published when the assigned broker accepts.
type ReferralAccepted struct {
	BaseEvent
	LeadID         uuid.UUID  `json:"leadId"`
	BrokerID       uuid.UUID  `json:"brokerId"`
	ConsultationID *uuid.UUID `json:"consultationId,omitempty"`
}

func (e ReferralAccepted) EventName() string { return "referrals.lead.accepted" }

// ReferralDeclined is published when the assigned broker declines.
type ReferralDeclined struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	BrokerID uuid.UUID `json:"brokerId"`
	Reason   string    `json:"reason"`
}

func (e ReferralDeclined) EventName() string { return "referrals.lead.declined" }

// ReferralExpired is published when a referral deadline lapses.
type ReferralExpired struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	BrokerID  uuid.UUID `json:"brokerId"`
	Territory string    `json:"territory"`
}

func (e ReferralExpired) EventName() string { return "referrals.lead.expired" }

// ReferralNeedsManualAssignment is published when no eligible broker remains.
type ReferralNeedsManualAssignment struct {
	BaseEvent
	LeadID         uuid.UUID   `json:"leadId"`
	Territory      string      `json:"territory"`
	TriedBrokerIDs []uuid.UUID `json:"triedBrokerIds"`
}

func (e ReferralNeedsManualAssignment) EventName() string {
	return "referrals.lead.reassignment_needed"
}

// =============================================================================
// Scheduled Delivery Events
// =============================================================================

// Broker notification kinds carried by BrokerNotificationDue.
const (
	BrokerNotifyAssigned = "assigned"
	BrokerNotifyExpired  = "expired"
)

// BrokerNotificationDue is published by the scheduler worker when a queued
// broker notification should be delivered.
type BrokerNotificationDue struct {
	BaseEvent
	Kind      string     `json:"kind"`
	LeadID    uuid.UUID  `json:"leadId"`
	BrokerID  uuid.UUID  `json:"brokerId"`
	Territory string     `json:"territory"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (e BrokerNotificationDue) EventName() string { return "referrals.notification.due" }

// ReferralExpiryReminderDue is published when a referral still awaits a
// response shortly before its deadline.
type ReferralExpiryReminderDue struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	BrokerID  uuid.UUID `json:"brokerId"`
	Territory string    `json:"territory"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e ReferralExpiryReminderDue) EventName() string { return "referrals.reminder.due" }
