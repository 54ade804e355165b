package memstore

import (
	"context"
	"errors"
	"sync"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"

	"github.com/google/uuid"
)

// ErrAppendFailed is returned while failures are armed with FailNext.
var ErrAppendFailed = errors.New("event log unavailable")

// EventLog is an append-only slice of events.
type EventLog struct {
	mu       sync.Mutex
	events   []domain.Event
	failNext int
	attempts int
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// FailNext makes the next n appends fail with ErrAppendFailed.
func (l *EventLog) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}

func (l *EventLog) AppendEvent(_ context.Context, event domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.failNext > 0 {
		l.failNext--
		return ErrAppendFailed
	}
	l.events = append(l.events, event)
	return nil
}

func (l *EventLog) ListEvents(_ context.Context, leadID uuid.UUID) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Event
	for _, e := range l.events {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every stored event in append order.
func (l *EventLog) All() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event(nil), l.events...)
}

// Attempts reports how many appends were tried, including failed ones.
func (l *EventLog) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

var _ ports.EventAppender = (*EventLog)(nil)
