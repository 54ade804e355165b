package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"broker_portal_backend/internal/referrals/service"
	"broker_portal_backend/platform/logger"
)

type countingSweeper struct {
	calls int
	err   error
}

func (s *countingSweeper) ExpireOverdue(ctx context.Context) (service.Report, error) {
	s.calls++
	return service.Report{ExpiredCount: 1}, s.err
}

func TestSweepSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	other := NewLease(rdb, SweepLeaseKey, time.Minute)
	if ok, _ := other.TryAcquire(ctx); !ok {
		t.Fatal("expected other replica to hold the lease")
	}

	sweeper := &countingSweeper{}
	s := NewReferralExpirySweeper(sweeper, NewLease(rdb, SweepLeaseKey, time.Minute), time.Minute, logger.Discard())
	s.sweep(ctx)

	if sweeper.calls != 0 {
		t.Fatalf("expected no sweep while lease is held, got %d", sweeper.calls)
	}
}

func TestSweepReleasesLeaseAfterPass(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	sweeper := &countingSweeper{err: errors.New("store down")}
	s := NewReferralExpirySweeper(sweeper, NewLease(rdb, SweepLeaseKey, time.Minute), time.Minute, logger.Discard())

	s.sweep(ctx)
	s.sweep(ctx)

	if sweeper.calls != 2 {
		t.Fatalf("expected two sweeps, got %d", sweeper.calls)
	}
	if mr.Exists(SweepLeaseKey) {
		t.Fatal("expected lease to be released after each pass")
	}
}

func TestSweepRunsWithoutLock(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewReferralExpirySweeper(sweeper, nil, time.Minute, logger.Discard())
	s.sweep(context.Background())

	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

// gatedSweeper blocks each pass until release is closed.
type gatedSweeper struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *gatedSweeper) ExpireOverdue(ctx context.Context) (service.Report, error) {
	s.calls.Add(1)
	close(s.started)
	<-s.release
	return service.Report{}, nil
}

func TestSweepSkipsWhilePreviousPassRuns(t *testing.T) {
	sweeper := &gatedSweeper{started: make(chan struct{}), release: make(chan struct{})}
	s := NewReferralExpirySweeper(sweeper, nil, time.Minute, logger.Discard())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.sweep(ctx)
	}()
	<-sweeper.started

	s.sweep(ctx)
	if _, err := s.SweepNow(ctx); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}

	close(sweeper.release)
	<-done

	if got := sweeper.calls.Load(); got != 1 {
		t.Fatalf("expected one pass, got %d", got)
	}
}
