// Package service implements the referral lifecycle: assignment, acceptance,
// decline, and expiry with automatic reassignment. It is the only writer of
// a lead's status.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/referrals/audit"
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/internal/referrals/selector"
	"broker_portal_backend/platform/apperr"
	"broker_portal_backend/platform/config"
	"broker_portal_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultTTL              = 48 * time.Hour
	defaultSweepBatchSize   = 200
	defaultSweepConcurrency = 8
	// strandedGrace keeps the sweep away from leads whose decline is still
	// being followed by its own reassignment.
	strandedGrace = 2 * time.Minute
)

// Outcome classifies a lifecycle call that did not fail with an I/O error.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeInvalidState     Outcome = "invalid_state"
	OutcomeNoEligibleBroker Outcome = "no_eligible_broker"
)

// Reasons attached to OutcomeInvalidState.
const (
	ReasonNotReferred       = "not_referred"
	ReasonNotAssignedBroker = "not_assigned_broker"
	ReasonAlreadyAccepted   = "already_accepted"
	ReasonNotAssignable     = "not_assignable"
	ReasonConcurrentUpdate  = "concurrent_update"
)

// Result is what every lifecycle operation returns when no I/O fault occurred.
type Result struct {
	Lead         domain.Lead
	Outcome      Outcome
	Reason       string
	Consultation *domain.Consultation
	// Reassignment is set when the operation chained into an automatic assign.
	Reassignment *Result
}

// OK reports whether the operation itself took effect.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Report summarizes one ExpireOverdue pass.
type Report struct {
	ExpiredCount    int `json:"expiredCount"`
	ReassignedCount int `json:"reassignedCount"`
	PendingCount    int `json:"pendingCount"`
	RecoveredCount  int `json:"recoveredCount"`
	FailedCount     int `json:"failedCount"`
}

// Settings are the timing knobs of the lifecycle.
type Settings struct {
	TTL              time.Duration
	SweepBatchSize   int
	SweepConcurrency int
}

// SettingsFrom reads Settings from configuration, filling defaults.
func SettingsFrom(cfg config.ReferralConfig) Settings {
	s := Settings{
		TTL:              cfg.GetReferralTTL(),
		SweepBatchSize:   cfg.GetReferralSweepBatchSize(),
		SweepConcurrency: cfg.GetReferralSweepConcurrency(),
	}
	if s.TTL <= 0 {
		s.TTL = defaultTTL
	}
	if s.SweepBatchSize <= 0 {
		s.SweepBatchSize = defaultSweepBatchSize
	}
	if s.SweepConcurrency <= 0 {
		s.SweepConcurrency = defaultSweepConcurrency
	}
	return s
}

// Service provides the referral lifecycle operations.
type Service struct {
	store     ports.LeadStore
	directory ports.BrokerDirectory
	selector  selector.Selector
	events    ports.EventAppender
	audit     *audit.Recorder
	eventBus  events.Bus
	clock     ports.Clock
	settings  Settings
	log       *logger.Logger
}

// New creates a referral service.
func New(
	store ports.LeadStore,
	directory ports.BrokerDirectory,
	sel selector.Selector,
	eventLog ports.EventAppender,
	recorder *audit.Recorder,
	eventBus events.Bus,
	settings Settings,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     store,
		directory: directory,
		selector:  sel,
		events:    eventLog,
		audit:     recorder,
		eventBus:  eventBus,
		clock:     ports.SystemClock{},
		settings:  settings,
		log:       log,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(clock ports.Clock) {
	s.clock = clock
}

// commit validates next, writes it conditionally against before, and records
// the transition. ErrStaleState passes through untouched.
func (s *Service) commit(ctx context.Context, before, next domain.Lead, eventType domain.EventType, actor domain.Actor, metadata map[string]any) (domain.Lead, error) {
	if err := next.Validate(); err != nil {
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "lead invariant violated", err)
	}

	updated, err := s.store.ConditionalUpdateLead(ctx, before.Snapshot(), next)
	if err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return domain.Lead{}, err
		}
		return domain.Lead{}, fmt.Errorf("update lead %s: %w", before.ID, err)
	}

	s.log.WithContext(ctx).ReferralTransition(updated.ID.String(), string(before.Status), string(updated.Status), actor.String())
	s.audit.Record(ctx, domain.NewTransitionEvent(updated.ID, eventType, before.Status, updated.Status, actor, metadata, s.clock.Now()))
	return updated, nil
}

// invalid builds an InvalidState result around the freshest copy of the lead.
func (s *Service) invalid(ctx context.Context, lead domain.Lead, reason string) (Result, error) {
	if reason == ReasonConcurrentUpdate {
		fresh, err := s.store.GetLead(ctx, lead.ID)
		if err != nil {
			return Result{}, fmt.Errorf("reload lead %s: %w", lead.ID, err)
		}
		lead = fresh
	}
	s.log.WithContext(ctx).Debug("referral operation skipped",
		"leadId", lead.ID, "status", lead.Status, "reason", reason)
	return Result{Lead: lead, Outcome: OutcomeInvalidState, Reason: reason}, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, event)
	}
}

func (s *Service) getLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead %s: %w", id, err)
	}
	return lead, nil
}
