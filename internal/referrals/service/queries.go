package service

import (
	"context"
	"fmt"
	"strings"

	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

// CreateLeadParams describes a new inquiry entering intake.
type CreateLeadParams struct {
	CustomerRef uuid.UUID
	Territory   string
	PropertyRef *uuid.UUID
	AutoAssign  bool
}

// CreateLead stores a lead in unassigned and optionally assigns it right away.
func (s *Service) CreateLead(ctx context.Context, params CreateLeadParams, actor domain.Actor) (Result, error) {
	territory := strings.ToUpper(strings.TrimSpace(params.Territory))
	if territory == "" {
		return Result{}, apperr.Validation("territory is required")
	}

	now := s.clock.Now()
	lead := domain.Lead{
		ID:          uuid.New(),
		CustomerRef: params.CustomerRef,
		Territory:   territory,
		PropertyRef: params.PropertyRef,
		Status:      domain.StatusUnassigned,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.store.CreateLead(ctx, lead)
	if err != nil {
		return Result{}, fmt.Errorf("create lead: %w", err)
	}

	to := domain.StatusUnassigned
	s.audit.Record(ctx, domain.Event{
		ID:        uuid.New(),
		LeadID:    created.ID,
		Type:      domain.EventCreated,
		ToStatus:  &to,
		Actor:     actor,
		Metadata:  map[string]any{"territory": territory},
		CreatedAt: now,
	})
	s.publish(ctx, events.ReferralCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    created.ID,
		Territory: territory,
	})

	if !params.AutoAssign {
		return Result{Lead: created, Outcome: OutcomeOK}, nil
	}

	assigned, err := s.assign(ctx, created, nil, domain.SystemActor())
	if err != nil {
		return Result{}, err
	}
	return Result{Lead: assigned.Lead, Outcome: OutcomeOK, Reassignment: &assigned}, nil
}

// GetLead returns a lead by id.
func (s *Service) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return s.getLead(ctx, id)
}

// ListLeads returns leads matching filter, newest first.
func (s *Service) ListLeads(ctx context.Context, filter ports.LeadFilter) ([]domain.Lead, error) {
	leads, err := s.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

// ListEvents returns a lead's activity log in append order.
func (s *Service) ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.Event, error) {
	if _, err := s.getLead(ctx, leadID); err != nil {
		return nil, err
	}
	evts, err := s.events.ListEvents(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("list events for lead %s: %w", leadID, err)
	}
	return evts, nil
}

// BrokerForUser resolves the broker profile behind a login.
func (s *Service) BrokerForUser(ctx context.Context, userID uuid.UUID) (domain.Broker, error) {
	broker, err := s.directory.GetBrokerByUserID(ctx, userID)
	if err != nil {
		return domain.Broker{}, fmt.Errorf("resolve broker for user %s: %w", userID, err)
	}
	return broker, nil
}
