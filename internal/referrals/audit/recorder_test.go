package audit

import (
	"context"
	"testing"
	"time"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/memstore"
	"broker_portal_backend/platform/logger"

	"github.com/google/uuid"
)

func testEvent() domain.Event {
	return domain.NewTransitionEvent(uuid.New(), domain.EventDeclined,
		domain.StatusReferred, domain.StatusDeclined, domain.SystemActor(), nil, time.Now())
}

func TestRecordRetriesOnceAfterFailure(t *testing.T) {
	log := memstore.NewEventLog()
	log.FailNext(1)
	rec := NewRecorder(log, logger.Discard()).WithRetryDelay(time.Millisecond)

	if !rec.Record(context.Background(), testEvent()) {
		t.Fatal("expected second attempt to succeed")
	}
	if log.Attempts() != 2 {
		t.Fatalf("expected 2 attempts, got %d", log.Attempts())
	}
	if len(log.All()) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(log.All()))
	}
	if rec.Failures() != 0 {
		t.Fatalf("expected no failures, got %d", rec.Failures())
	}
}

func TestRecordGivesUpAfterSecondFailure(t *testing.T) {
	log := memstore.NewEventLog()
	log.FailNext(5)
	rec := NewRecorder(log, logger.Discard()).WithRetryDelay(time.Millisecond)

	if rec.Record(context.Background(), testEvent()) {
		t.Fatal("expected record to report failure")
	}
	if log.Attempts() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", log.Attempts())
	}
	if rec.Failures() != 1 {
		t.Fatalf("expected failure count 1, got %d", rec.Failures())
	}
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	log := memstore.NewEventLog()
	rec := NewRecorder(log, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if !rec.Record(ctx, testEvent()) {
		t.Fatal("expected record to ignore caller cancellation")
	}
}
