package service

import (
	"context"
	"errors"
	"fmt"

	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/platform/apperr"
	"broker_portal_backend/platform/sanitize"

	"github.com/google/uuid"
)

const maxNotesLength = 2000

// Assign hands a lead to explicitBrokerID, or to the selector's choice when nil.
// With no eligible broker the lead is parked in pending_reassignment.
func (s *Service) Assign(ctx context.Context, leadID uuid.UUID, explicitBrokerID *uuid.UUID, actor domain.Actor) (Result, error) {
	lead, err := s.getLead(ctx, leadID)
	if err != nil {
		return Result{}, err
	}
	return s.assign(ctx, lead, explicitBrokerID, actor)
}

func (s *Service) assign(ctx context.Context, lead domain.Lead, explicitBrokerID *uuid.UUID, actor domain.Actor) (Result, error) {
	if !lead.Status.Assignable() {
		return s.invalid(ctx, lead, ReasonNotAssignable)
	}

	broker, err := s.pickBroker(ctx, lead, explicitBrokerID)
	if err != nil {
		return Result{}, err
	}

	now := s.clock.Now()
	if broker == nil {
		return s.parkLead(ctx, lead, actor)
	}

	next, err := lead.Refer(broker.ID, now, s.settings.TTL)
	if err != nil {
		return s.invalid(ctx, lead, ReasonNotAssignable)
	}

	updated, err := s.commit(ctx, lead, next, domain.EventAssigned, actor, map[string]any{
		"brokerId":  broker.ID.String(),
		"expiresAt": next.ReferralExpiresAt,
		"explicit":  explicitBrokerID != nil,
	})
	if errors.Is(err, domain.ErrStaleState) {
		return s.invalid(ctx, lead, ReasonConcurrentUpdate)
	}
	if err != nil {
		return Result{}, err
	}

	s.publish(ctx, events.ReferralAssigned{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    updated.ID,
		BrokerID:  broker.ID,
		Territory: updated.Territory,
		ExpiresAt: *updated.ReferralExpiresAt,
		ActorType: string(actor.Type),
		ActorID:   actor.ID,
	})
	return Result{Lead: updated, Outcome: OutcomeOK}, nil
}

func (s *Service) pickBroker(ctx context.Context, lead domain.Lead, explicitBrokerID *uuid.UUID) (*domain.Broker, error) {
	if explicitBrokerID == nil {
		broker, err := s.selector.SelectBroker(ctx, lead.Territory, lead.TriedBrokerIDs)
		if err != nil {
			return nil, fmt.Errorf("select broker for lead %s: %w", lead.ID, err)
		}
		return broker, nil
	}

	broker, err := s.directory.GetBroker(ctx, *explicitBrokerID)
	if err != nil {
		return nil, fmt.Errorf("get broker %s: %w", *explicitBrokerID, err)
	}
	if !broker.Active {
		return nil, apperr.Validation("broker is not active")
	}
	return &broker, nil
}

// parkLead moves a lead nobody can take into pending_reassignment. A lead
// already parked stays put without a new event.
func (s *Service) parkLead(ctx context.Context, lead domain.Lead, actor domain.Actor) (Result, error) {
	if lead.Status == domain.StatusPendingReassignment {
		return Result{Lead: lead, Outcome: OutcomeNoEligibleBroker}, nil
	}

	next, err := lead.MarkPendingReassignment(s.clock.Now())
	if err != nil {
		return s.invalid(ctx, lead, ReasonNotAssignable)
	}

	tried := make([]string, 0, len(lead.TriedBrokerIDs))
	for _, id := range lead.TriedBrokerIDs {
		tried = append(tried, id.String())
	}

	updated, err := s.commit(ctx, lead, next, domain.EventReassignmentNeeded, actor, map[string]any{
		"territory":      lead.Territory,
		"triedBrokerIds": tried,
	})
	if errors.Is(err, domain.ErrStaleState) {
		return s.invalid(ctx, lead, ReasonConcurrentUpdate)
	}
	if err != nil {
		return Result{}, err
	}

	s.log.WithContext(ctx).Warn("lead needs manual assignment", "leadId", updated.ID, "territory", updated.Territory)
	s.publish(ctx, events.ReferralNeedsManualAssignment{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         updated.ID,
		Territory:      updated.Territory,
		TriedBrokerIDs: updated.TriedBrokerIDs,
	})
	return Result{Lead: updated, Outcome: OutcomeNoEligibleBroker}, nil
}

// Accept records brokerID taking the lead and spawns its consultation.
// A repeated accept by the same broker re-ensures the consultation exists.
func (s *Service) Accept(ctx context.Context, leadID, brokerID uuid.UUID, notes *string) (Result, error) {
	lead, err := s.getLead(ctx, leadID)
	if err != nil {
		return Result{}, err
	}

	if lead.Status == domain.StatusAccepted && lead.IsAssignedTo(brokerID) {
		consultation, err := s.ensureConsultation(ctx, lead)
		if err != nil {
			return Result{}, err
		}
		res, err := s.invalid(ctx, lead, ReasonAlreadyAccepted)
		res.Consultation = &consultation
		return res, err
	}

	next, err := lead.Accept(brokerID, cleanNotes(notes), s.clock.Now())
	if err != nil {
		return s.invalid(ctx, lead, rejectionReason(err))
	}

	updated, err := s.commit(ctx, lead, next, domain.EventAccepted, domain.BrokerActor(brokerID), nil)
	if errors.Is(err, domain.ErrStaleState) {
		return s.invalid(ctx, lead, ReasonConcurrentUpdate)
	}
	if err != nil {
		return Result{}, err
	}

	accepted := events.ReferralAccepted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    updated.ID,
		BrokerID:  brokerID,
	}

	// The acceptance is committed; a missing consultation is created by a
	// retried accept and does not hold back the event.
	consultation, err := s.ensureConsultation(ctx, updated)
	if err != nil {
		s.log.WithContext(ctx).Error("consultation not created after accept", "leadId", updated.ID, "error", err)
		s.publish(ctx, accepted)
		return Result{Lead: updated, Outcome: OutcomeOK}, nil
	}

	accepted.ConsultationID = &consultation.ID
	s.publish(ctx, accepted)
	return Result{Lead: updated, Outcome: OutcomeOK, Consultation: &consultation}, nil
}

func (s *Service) ensureConsultation(ctx context.Context, lead domain.Lead) (domain.Consultation, error) {
	c, err := s.store.InsertConsultation(ctx, domain.NewConsultation(lead, s.clock.Now()))
	if err != nil {
		return domain.Consultation{}, fmt.Errorf("insert consultation for lead %s: %w", lead.ID, err)
	}
	return c, nil
}

// Decline records brokerID passing on the lead, then reassigns it.
// A failed reassignment does not undo the decline; the sweep picks it up.
func (s *Service) Decline(ctx context.Context, leadID, brokerID uuid.UUID, reason domain.DeclineReason, notes *string) (Result, error) {
	if !reason.Valid() {
		return Result{}, apperr.Validation("unknown decline reason")
	}

	lead, err := s.getLead(ctx, leadID)
	if err != nil {
		return Result{}, err
	}

	next, err := lead.Decline(brokerID, reason, cleanNotes(notes), s.clock.Now())
	if err != nil {
		return s.invalid(ctx, lead, rejectionReason(err))
	}

	metadata := map[string]any{"reason": string(reason)}
	if next.DeclineNotes != nil {
		metadata["notes"] = *next.DeclineNotes
	}
	updated, err := s.commit(ctx, lead, next, domain.EventDeclined, domain.BrokerActor(brokerID), metadata)
	if errors.Is(err, domain.ErrStaleState) {
		return s.invalid(ctx, lead, ReasonConcurrentUpdate)
	}
	if err != nil {
		return Result{}, err
	}

	s.publish(ctx, events.ReferralDeclined{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    updated.ID,
		BrokerID:  brokerID,
		Reason:    string(reason),
	})

	result := Result{Lead: updated, Outcome: OutcomeOK}
	reassigned, err := s.assign(ctx, updated, nil, domain.SystemActor())
	if err != nil {
		s.log.WithContext(ctx).Error("reassignment after decline failed", "leadId", updated.ID, "error", err)
		return result, nil
	}
	result.Reassignment = &reassigned
	return result, nil
}

func rejectionReason(err error) string {
	if errors.Is(err, domain.ErrNotAssignedBroker) {
		return ReasonNotAssignedBroker
	}
	return ReasonNotReferred
}

func cleanNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	cleaned := sanitize.Text(*notes, maxNotesLength)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
