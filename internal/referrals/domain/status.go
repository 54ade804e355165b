// Package domain holds the referral lifecycle types and the rules for moving
// a lead between statuses. It has no I/O.
package domain

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusUnassigned          Status = "unassigned"
	StatusReferred            Status = "referred"
	StatusAccepted            Status = "accepted"
	StatusDeclined            Status = "declined"
	StatusExpired             Status = "expired"
	StatusPendingReassignment Status = "pending_reassignment"
)

var (
	// ErrInvalidTransition means the lead's current status does not allow the move.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotAssignedBroker means the acting broker is not the one the lead is referred to.
	ErrNotAssignedBroker = errors.New("broker is not assigned to this lead")
	// ErrStaleState is returned by stores when a conditional update finds the
	// lead no longer in the expected status/version.
	ErrStaleState = errors.New("lead state changed concurrently")
)

var transitions = map[Status]map[Status]bool{
	StatusUnassigned:          {StatusReferred: true, StatusPendingReassignment: true},
	StatusReferred:            {StatusAccepted: true, StatusDeclined: true, StatusExpired: true},
	StatusDeclined:            {StatusReferred: true, StatusPendingReassignment: true},
	StatusExpired:             {StatusReferred: true, StatusPendingReassignment: true},
	StatusPendingReassignment: {StatusReferred: true},
	StatusAccepted:            {},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Assignable reports whether a lead in s may be handed to a broker.
func (s Status) Assignable() bool {
	return CanTransition(s, StatusReferred)
}

// HoldsBroker reports whether a lead in s must carry an assigned broker.
func (s Status) HoldsBroker() bool {
	return s == StatusReferred || s == StatusAccepted
}

// DeclineReason is the broker-supplied reason for declining.
type DeclineReason string

const (
	DeclineAtCapacity         DeclineReason = "at_capacity"
	DeclineOutsideTerritory   DeclineReason = "outside_territory"
	DeclineConflictOfInterest DeclineReason = "conflict_of_interest"
	DeclineNotInterested      DeclineReason = "not_interested"
	DeclineOther              DeclineReason = "other"
)

// Valid reports whether r is one of the known decline reasons.
func (r DeclineReason) Valid() bool {
	switch r {
	case DeclineAtCapacity, DeclineOutsideTerritory, DeclineConflictOfInterest, DeclineNotInterested, DeclineOther:
		return true
	}
	return false
}
