package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type stubLeads struct {
	lead domain.Lead
	err  error
}

func (s stubLeads) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return s.lead, s.err
}

func referredLead(brokerID uuid.UUID, expiresAt time.Time) domain.Lead {
	return domain.Lead{
		ID:                uuid.New(),
		Territory:         "AMS",
		Status:            domain.StatusReferred,
		AssignedBrokerID:  &brokerID,
		ReferralExpiresAt: &expiresAt,
	}
}

func captureReminders(bus *events.InMemoryBus) *[]events.ReferralExpiryReminderDue {
	var got []events.ReferralExpiryReminderDue
	bus.Subscribe(events.ReferralExpiryReminderDue{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		got = append(got, e.(events.ReferralExpiryReminderDue))
		return nil
	}))
	return &got
}

func reminderTask(t *testing.T, lead domain.Lead, brokerID uuid.UUID, expiresAt time.Time) *asynq.Task {
	t.Helper()
	task, err := NewExpiryReminderTask(ExpiryReminderPayload{
		LeadID:    lead.ID.String(),
		BrokerID:  brokerID.String(),
		Territory: lead.Territory,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestExpiryReminderFiresWhileReferralIsPending(t *testing.T) {
	brokerID := uuid.New()
	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lead := referredLead(brokerID, expiresAt)

	bus := events.NewInMemoryBus(logger.Discard())
	got := captureReminders(bus)
	w := newWorker(stubLeads{lead: lead}, bus, logger.Discard())

	if err := w.handleExpiryReminder(context.Background(), reminderTask(t, lead, brokerID, expiresAt)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected one reminder event, got %d", len(*got))
	}
	if (*got)[0].BrokerID != brokerID || !(*got)[0].ExpiresAt.Equal(expiresAt) {
		t.Fatalf("unexpected reminder payload: %+v", (*got)[0])
	}
}

func TestExpiryReminderSkipsStaleReferrals(t *testing.T) {
	brokerID := uuid.New()
	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	accepted := referredLead(brokerID, expiresAt)
	accepted.Status = domain.StatusAccepted

	reassigned := referredLead(uuid.New(), expiresAt)

	rereferred := referredLead(brokerID, expiresAt.Add(48*time.Hour))

	cases := map[string]domain.Lead{
		"accepted":   accepted,
		"reassigned": reassigned,
		"rereferred": rereferred,
	}

	for name, lead := range cases {
		t.Run(name, func(t *testing.T) {
			bus := events.NewInMemoryBus(logger.Discard())
			got := captureReminders(bus)
			w := newWorker(stubLeads{lead: lead}, bus, logger.Discard())

			if err := w.handleExpiryReminder(context.Background(), reminderTask(t, lead, brokerID, expiresAt)); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if len(*got) != 0 {
				t.Fatalf("expected stale reminder to be dropped, got %d events", len(*got))
			}
		})
	}
}

func TestExpiryReminderRetriesOnStoreError(t *testing.T) {
	brokerID := uuid.New()
	expiresAt := time.Now().Add(time.Hour)
	lead := referredLead(brokerID, expiresAt)

	storeErr := errors.New("connection refused")
	w := newWorker(stubLeads{err: storeErr}, events.NewInMemoryBus(logger.Discard()), logger.Discard())

	err := w.handleExpiryReminder(context.Background(), reminderTask(t, lead, brokerID, expiresAt))
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to surface for retry, got %v", err)
	}
}

func TestBrokerNotifyPublishesDueEvent(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Discard())
	var got []events.BrokerNotificationDue
	bus.Subscribe(events.BrokerNotificationDue{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		got = append(got, e.(events.BrokerNotificationDue))
		return nil
	}))
	w := newWorker(stubLeads{}, bus, logger.Discard())

	leadID, brokerID := uuid.New(), uuid.New()
	task, err := NewBrokerNotifyTask(BrokerNotifyPayload{
		Kind:      events.BrokerNotifyExpired,
		LeadID:    leadID.String(),
		BrokerID:  brokerID.String(),
		Territory: "UTR",
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleBrokerNotify(context.Background(), task); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(got) != 1 || got[0].Kind != events.BrokerNotifyExpired || got[0].LeadID != leadID {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestBrokerNotifyRejectsMalformedPayload(t *testing.T) {
	w := newWorker(stubLeads{}, events.NewInMemoryBus(logger.Discard()), logger.Discard())

	err := w.handleBrokerNotify(context.Background(), asynq.NewTask(TaskBrokerNotify, []byte(`{"leadId":"nope"}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for malformed payload, got %v", err)
	}
}

func TestReminderTaskIDIsStablePerDeadline(t *testing.T) {
	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	a := reminderTaskID(ExpiryReminderPayload{LeadID: "l1", ExpiresAt: expiresAt})
	b := reminderTaskID(ExpiryReminderPayload{LeadID: "l1", ExpiresAt: expiresAt.UTC()})
	c := reminderTaskID(ExpiryReminderPayload{LeadID: "l1", ExpiresAt: expiresAt.Add(time.Hour)})

	if a != b {
		t.Fatalf("expected same id across zones, got %q and %q", a, b)
	}
	if a == c {
		t.Fatal("expected a new deadline to get a new id")
	}
}
