package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/referrals/domain"

	"golang.org/x/sync/errgroup"
)

type sweepOutcome int

const (
	sweepSkipped sweepOutcome = iota
	sweepReassigned
	sweepPending
	sweepExpiredOnly
	sweepFailed
)

// ExpireOverdue expires every referral past its deadline and reassigns it.
// It then retries reassignment for declined or expired leads left behind by
// an earlier failure. Each lead is handled independently; one failure never
// stops the rest.
func (s *Service) ExpireOverdue(ctx context.Context) (Report, error) {
	now := s.clock.Now()

	overdue, err := s.store.ListOverdueReferrals(ctx, now, s.settings.SweepBatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("list overdue referrals: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)

	var g errgroup.Group
	g.SetLimit(s.settings.SweepConcurrency)
	for _, lead := range overdue {
		g.Go(func() error {
			expired, outcome := s.expireOne(ctx, lead)
			mu.Lock()
			defer mu.Unlock()
			if expired {
				report.ExpiredCount++
			}
			tally(&report, outcome)
			return nil
		})
	}
	_ = g.Wait()

	stranded, err := s.store.ListStrandedLeads(ctx, now.Add(-strandedGrace), s.settings.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("list stranded leads: %w", err)
	}
	for _, lead := range stranded {
		g.Go(func() error {
			outcome := s.recoverOne(ctx, lead)
			mu.Lock()
			defer mu.Unlock()
			if outcome == sweepReassigned || outcome == sweepPending {
				report.RecoveredCount++
			}
			tally(&report, outcome)
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

func tally(report *Report, outcome sweepOutcome) {
	switch outcome {
	case sweepReassigned:
		report.ReassignedCount++
	case sweepPending:
		report.PendingCount++
	case sweepFailed:
		report.FailedCount++
	}
}

// expireOne reports whether the lead was expired and what reassignment did.
func (s *Service) expireOne(ctx context.Context, lead domain.Lead) (bool, sweepOutcome) {
	log := s.log.WithContext(ctx)

	next, err := lead.Expire(s.clock.Now())
	if err != nil {
		return false, sweepSkipped
	}

	updated, err := s.commit(ctx, lead, next, domain.EventExpired, domain.SystemActor(), map[string]any{
		"brokerId":  lead.AssignedBrokerID.String(),
		"expiresAt": lead.ReferralExpiresAt,
	})
	if errors.Is(err, domain.ErrStaleState) {
		log.Debug("overdue referral already handled", "leadId", lead.ID)
		return false, sweepSkipped
	}
	if err != nil {
		log.Error("expire referral failed", "leadId", lead.ID, "error", err)
		return false, sweepFailed
	}

	s.publish(ctx, events.ReferralExpired{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    updated.ID,
		BrokerID:  *lead.AssignedBrokerID,
		Territory: updated.Territory,
	})

	return true, s.reassign(ctx, updated)
}

func (s *Service) recoverOne(ctx context.Context, lead domain.Lead) sweepOutcome {
	s.log.WithContext(ctx).Info("retrying reassignment for stranded lead", "leadId", lead.ID, "status", lead.Status)
	return s.reassign(ctx, lead)
}

func (s *Service) reassign(ctx context.Context, lead domain.Lead) sweepOutcome {
	res, err := s.assign(ctx, lead, nil, domain.SystemActor())
	if err != nil {
		s.log.WithContext(ctx).Error("reassign lead failed", "leadId", lead.ID, "error", err)
		return sweepFailed
	}
	switch res.Outcome {
	case OutcomeOK:
		return sweepReassigned
	case OutcomeNoEligibleBroker:
		return sweepPending
	default:
		return sweepExpiredOnly
	}
}
