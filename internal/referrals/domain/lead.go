package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Lead is a customer inquiry routed to brokers.
type Lead struct {
	ID                uuid.UUID
	CustomerRef       uuid.UUID
	Territory         string
	PropertyRef       *uuid.UUID
	Status            Status
	AssignedBrokerID  *uuid.UUID
	ReferredAt        *time.Time
	AcceptedAt        *time.Time
	DeclinedAt        *time.Time
	ExpiredAt         *time.Time
	ReferralExpiresAt *time.Time
	DeclineReason     *DeclineReason
	DeclineNotes      *string
	AcceptNotes       *string
	// TriedBrokerIDs lists brokers who declined or let the referral lapse.
	// Automatic selection skips them.
	TriedBrokerIDs []uuid.UUID
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Expected identifies the snapshot a conditional update was computed from.
type Expected struct {
	Status  Status
	Version int
}

// Snapshot returns the Expected value for l.
func (l Lead) Snapshot() Expected {
	return Expected{Status: l.Status, Version: l.Version}
}

// IsAssignedTo reports whether brokerID holds the lead.
func (l Lead) IsAssignedTo(brokerID uuid.UUID) bool {
	return l.AssignedBrokerID != nil && *l.AssignedBrokerID == brokerID
}

// IsOverdue reports whether a referred lead's deadline has passed at now.
func (l Lead) IsOverdue(now time.Time) bool {
	return l.Status == StatusReferred && l.ReferralExpiresAt != nil && l.ReferralExpiresAt.Before(now)
}

// Refer hands the lead to brokerID with a deadline of now+ttl.
func (l Lead) Refer(brokerID uuid.UUID, now time.Time, ttl time.Duration) (Lead, error) {
	if err := l.checkTransition(StatusReferred); err != nil {
		return l, err
	}
	next := l.clone()
	expires := now.Add(ttl)
	next.Status = StatusReferred
	next.AssignedBrokerID = &brokerID
	next.ReferredAt = &now
	next.ReferralExpiresAt = &expires
	next.UpdatedAt = now
	return next, nil
}

// Accept records the assigned broker taking the lead.
func (l Lead) Accept(brokerID uuid.UUID, notes *string, now time.Time) (Lead, error) {
	if err := l.checkTransition(StatusAccepted); err != nil {
		return l, err
	}
	if !l.IsAssignedTo(brokerID) {
		return l, ErrNotAssignedBroker
	}
	next := l.clone()
	next.Status = StatusAccepted
	next.AcceptedAt = &now
	next.AcceptNotes = notes
	next.ReferralExpiresAt = nil
	next.UpdatedAt = now
	return next, nil
}

// Decline records the assigned broker passing on the lead and releases it.
func (l Lead) Decline(brokerID uuid.UUID, reason DeclineReason, notes *string, now time.Time) (Lead, error) {
	if err := l.checkTransition(StatusDeclined); err != nil {
		return l, err
	}
	if !l.IsAssignedTo(brokerID) {
		return l, ErrNotAssignedBroker
	}
	next := l.release()
	next.Status = StatusDeclined
	next.DeclinedAt = &now
	next.DeclineReason = &reason
	next.DeclineNotes = notes
	next.UpdatedAt = now
	return next, nil
}

// Expire releases a referred lead whose deadline has passed.
func (l Lead) Expire(now time.Time) (Lead, error) {
	if err := l.checkTransition(StatusExpired); err != nil {
		return l, err
	}
	if !l.IsOverdue(now) {
		return l, fmt.Errorf("%w: referral is not overdue", ErrInvalidTransition)
	}
	next := l.release()
	next.Status = StatusExpired
	next.ExpiredAt = &now
	next.UpdatedAt = now
	return next, nil
}

// MarkPendingReassignment parks a lead no broker could take.
func (l Lead) MarkPendingReassignment(now time.Time) (Lead, error) {
	if err := l.checkTransition(StatusPendingReassignment); err != nil {
		return l, err
	}
	next := l.clone()
	next.Status = StatusPendingReassignment
	next.UpdatedAt = now
	return next, nil
}

// Validate checks the structural invariants that must hold in every status.
func (l Lead) Validate() error {
	if !l.Status.Valid() {
		return fmt.Errorf("unknown status %q", l.Status)
	}
	if (l.AssignedBrokerID != nil) != l.Status.HoldsBroker() {
		return fmt.Errorf("lead %s: assigned broker present=%t in status %s", l.ID, l.AssignedBrokerID != nil, l.Status)
	}
	if (l.ReferralExpiresAt != nil) != (l.Status == StatusReferred) {
		return fmt.Errorf("lead %s: referral expiry present=%t in status %s", l.ID, l.ReferralExpiresAt != nil, l.Status)
	}
	return nil
}

func (l Lead) checkTransition(to Status) error {
	if !CanTransition(l.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, to)
	}
	return nil
}

// release clears the assignment and remembers the broker as tried.
func (l Lead) release() Lead {
	next := l.clone()
	if l.AssignedBrokerID != nil && !slices.Contains(next.TriedBrokerIDs, *l.AssignedBrokerID) {
		next.TriedBrokerIDs = append(next.TriedBrokerIDs, *l.AssignedBrokerID)
	}
	next.AssignedBrokerID = nil
	next.ReferralExpiresAt = nil
	return next
}

func (l Lead) clone() Lead {
	next := l
	next.TriedBrokerIDs = slices.Clone(l.TriedBrokerIDs)
	return next
}
