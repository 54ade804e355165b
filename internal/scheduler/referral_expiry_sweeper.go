package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"broker_portal_backend/internal/referrals/service"
	"broker_portal_backend/platform/apperr"
	"broker_portal_backend/platform/logger"
)

const SweepLeaseKey = "referrals:expiry-sweep:lease"

// ErrSweepInProgress reports that a pass is already running in this process
// or on another replica.
var ErrSweepInProgress = apperr.Conflict("referral sweep already in progress").WithCode("sweep_in_progress")

// ReferralSweeper expires overdue referrals and recovers stranded leads.
type ReferralSweeper interface {
	ExpireOverdue(ctx context.Context) (service.Report, error)
}

// Locker guards a sweep pass across replicas.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type ReferralExpirySweeper struct {
	sweeper  ReferralSweeper
	lock     Locker
	interval time.Duration
	log      *logger.Logger
	running  sync.Mutex
}

// NewReferralExpirySweeper runs sweeper every interval. lock may be nil when
// only one scheduler process runs.
func NewReferralExpirySweeper(sweeper ReferralSweeper, lock Locker, interval time.Duration, log *logger.Logger) *ReferralExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReferralExpirySweeper{
		sweeper:  sweeper,
		lock:     lock,
		interval: interval,
		log:      log,
	}
}

func (s *ReferralExpirySweeper) Run(ctx context.Context) {
	if s == nil || s.sweeper == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SetLock installs the cross-replica lease. Call it before Run or SweepNow.
func (s *ReferralExpirySweeper) SetLock(lock Locker) {
	s.lock = lock
}

// SweepNow runs one pass on demand under the same guards as the ticker. It
// returns ErrSweepInProgress when another pass holds the mutex or the lease.
func (s *ReferralExpirySweeper) SweepNow(ctx context.Context) (service.Report, error) {
	start := time.Now()
	report, err := s.pass(ctx)
	if err != nil {
		return service.Report{}, err
	}
	s.log.SweepCompleted(report.ExpiredCount, report.ReassignedCount, report.PendingCount, report.FailedCount,
		float64(time.Since(start).Microseconds())/1000)
	return report, nil
}

func (s *ReferralExpirySweeper) sweep(ctx context.Context) {
	_, err := s.SweepNow(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		s.log.Debug("referral sweep skipped, another pass is running")
	case err != nil:
		s.log.Error("referral sweep failed", "error", err)
	}
}

func (s *ReferralExpirySweeper) pass(ctx context.Context) (service.Report, error) {
	if !s.running.TryLock() {
		return service.Report{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	if s.lock != nil {
		acquired, err := s.lock.TryAcquire(ctx)
		if err != nil {
			return service.Report{}, apperr.Unavailable("referral sweep lease unavailable", err)
		}
		if !acquired {
			return service.Report{}, ErrSweepInProgress
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("referral sweep lease release failed", "error", err)
			}
		}()
	}

	return s.sweeper.ExpireOverdue(ctx)
}
