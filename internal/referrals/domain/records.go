package domain

import (
	"time"

	"github.com/google/uuid"
)

// Consultation is the working record spawned when a broker accepts a lead.
type Consultation struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	BrokerID    uuid.UUID
	CustomerRef uuid.UUID
	PropertyRef *uuid.UUID
	Territory   string
	Status      string
	Notes       *string
	CreatedAt   time.Time
}

// ConsultationStatusActive is the status of a freshly spawned consultation.
const ConsultationStatusActive = "active"

// NewConsultation builds the consultation for an accepted lead.
func NewConsultation(lead Lead, now time.Time) Consultation {
	var brokerID uuid.UUID
	if lead.AssignedBrokerID != nil {
		brokerID = *lead.AssignedBrokerID
	}
	return Consultation{
		ID:          uuid.New(),
		LeadID:      lead.ID,
		BrokerID:    brokerID,
		CustomerRef: lead.CustomerRef,
		PropertyRef: lead.PropertyRef,
		Territory:   lead.Territory,
		Status:      ConsultationStatusActive,
		Notes:       lead.AcceptNotes,
		CreatedAt:   now,
	}
}

// Broker is the directory view the engine needs for selection.
type Broker struct {
	ID          uuid.UUID
	DisplayName string
	Active      bool
	Territories []string
}

// Covers reports whether b serves territory.
func (b Broker) Covers(territory string) bool {
	for _, t := range b.Territories {
		if t == territory {
			return true
		}
	}
	return false
}

// EventType names an entry in a lead's activity log.
type EventType string

const (
	EventCreated            EventType = "created"
	EventAssigned           EventType = "assigned"
	EventAccepted           EventType = "accepted"
	EventDeclined           EventType = "declined"
	EventExpired            EventType = "expired"
	EventReassignmentNeeded EventType = "reassignment_needed"
)

// ActorType identifies who caused a transition.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorBroker ActorType = "broker"
	ActorAdmin  ActorType = "admin"
)

// Actor is the party responsible for a transition. ID is nil for the system.
type Actor struct {
	Type ActorType
	ID   *uuid.UUID
}

// SystemActor is used for sweeps and automatic reassignment.
func SystemActor() Actor { return Actor{Type: ActorSystem} }

// BrokerActor wraps a broker id.
func BrokerActor(id uuid.UUID) Actor { return Actor{Type: ActorBroker, ID: &id} }

// AdminActor wraps an admin user id.
func AdminActor(id uuid.UUID) Actor { return Actor{Type: ActorAdmin, ID: &id} }

// String renders the actor for logs.
func (a Actor) String() string {
	if a.ID == nil {
		return string(a.Type)
	}
	return string(a.Type) + ":" + a.ID.String()
}

// Event is one append-only activity log entry.
type Event struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	Type       EventType
	FromStatus *Status
	ToStatus   *Status
	Actor      Actor
	Metadata   map[string]any
	CreatedAt  time.Time
}

// NewTransitionEvent describes a status change from -> to.
func NewTransitionEvent(leadID uuid.UUID, eventType EventType, from, to Status, actor Actor, metadata map[string]any, now time.Time) Event {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Event{
		ID:         uuid.New(),
		LeadID:     leadID,
		Type:       eventType,
		FromStatus: &from,
		ToStatus:   &to,
		Actor:      actor,
		Metadata:   metadata,
		CreatedAt:  now,
	}
}
