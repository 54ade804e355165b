package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newLead() Lead {
	return Lead{
		ID:          uuid.New(),
		CustomerRef: uuid.New(),
		Territory:   "SC",
		Status:      StatusUnassigned,
		Version:     1,
	}
}

func TestReferSetsBrokerAndDeadline(t *testing.T) {
	broker := uuid.New()
	lead, err := newLead().Refer(broker, baseTime, 48*time.Hour)
	if err != nil {
		t.Fatalf("refer: %v", err)
	}
	if lead.Status != StatusReferred || !lead.IsAssignedTo(broker) {
		t.Fatalf("expected referred to broker, got %s", lead.Status)
	}
	if !lead.ReferralExpiresAt.Equal(baseTime.Add(48 * time.Hour)) {
		t.Fatalf("expected expiry at +48h, got %s", lead.ReferralExpiresAt)
	}
	if err := lead.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestAcceptRequiresAssignedBroker(t *testing.T) {
	broker := uuid.New()
	lead, _ := newLead().Refer(broker, baseTime, time.Hour)

	if _, err := lead.Accept(uuid.New(), nil, baseTime); !errors.Is(err, ErrNotAssignedBroker) {
		t.Fatalf("expected ErrNotAssignedBroker, got %v", err)
	}

	accepted, err := lead.Accept(broker, nil, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.ReferralExpiresAt != nil {
		t.Fatal("expected expiry to be cleared on accept")
	}
	if err := accepted.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestAcceptedIsTerminal(t *testing.T) {
	broker := uuid.New()
	lead, _ := newLead().Refer(broker, baseTime, time.Hour)
	accepted, _ := lead.Accept(broker, nil, baseTime)

	if _, err := accepted.Refer(uuid.New(), baseTime, time.Hour); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected accepted lead to refuse re-referral, got %v", err)
	}
	if _, err := accepted.Decline(broker, DeclineOther, nil, baseTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected accepted lead to refuse decline, got %v", err)
	}
	if _, err := accepted.MarkPendingReassignment(baseTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected accepted lead to refuse pending, got %v", err)
	}
}

func TestDeclineReleasesAndRemembersBroker(t *testing.T) {
	broker := uuid.New()
	lead, _ := newLead().Refer(broker, baseTime, time.Hour)
	notes := "too far"

	declined, err := lead.Decline(broker, DeclineOutsideTerritory, &notes, baseTime)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.AssignedBrokerID != nil || declined.ReferralExpiresAt != nil {
		t.Fatal("expected assignment and expiry to be cleared")
	}
	if len(declined.TriedBrokerIDs) != 1 || declined.TriedBrokerIDs[0] != broker {
		t.Fatalf("expected broker in tried list, got %v", declined.TriedBrokerIDs)
	}
	if len(lead.TriedBrokerIDs) != 0 {
		t.Fatal("expected original lead to be untouched")
	}
	if err := declined.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestExpireOnlyWhenOverdue(t *testing.T) {
	broker := uuid.New()
	lead, _ := newLead().Refer(broker, baseTime, time.Hour)

	if _, err := lead.Expire(baseTime.Add(30 * time.Minute)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected early expire to fail, got %v", err)
	}

	expired, err := lead.Expire(baseTime.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired.Status != StatusExpired || expired.ExpiredAt == nil {
		t.Fatalf("expected expired status with timestamp, got %s", expired.Status)
	}
	if err := expired.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusUnassigned, StatusReferred, true},
		{StatusUnassigned, StatusAccepted, false},
		{StatusReferred, StatusExpired, true},
		{StatusReferred, StatusReferred, false},
		{StatusDeclined, StatusReferred, true},
		{StatusExpired, StatusPendingReassignment, true},
		{StatusPendingReassignment, StatusReferred, true},
		{StatusPendingReassignment, StatusPendingReassignment, false},
		{StatusAccepted, StatusReferred, false},
		{StatusAccepted, StatusUnassigned, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %t, got %t", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestValidateCatchesBrokenInvariants(t *testing.T) {
	broker := uuid.New()
	lead := newLead()
	lead.AssignedBrokerID = &broker
	if err := lead.Validate(); err == nil {
		t.Fatal("expected unassigned lead with broker to fail validation")
	}

	lead = newLead()
	lead.Status = StatusReferred
	lead.AssignedBrokerID = &broker
	if err := lead.Validate(); err == nil {
		t.Fatal("expected referred lead without expiry to fail validation")
	}
}
