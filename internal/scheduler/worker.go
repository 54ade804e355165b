package scheduler

import (
	"context"
	"fmt"

	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/platform/config"
	"broker_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// LeadReader loads the current state of a lead.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	leads  LeadReader
	bus    events.Bus
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, leads LeadReader, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(leads, bus, log)
	w.server = server
	return w, nil
}

func newWorker(leads LeadReader, bus events.Bus, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:   mux,
		leads: leads,
		bus:   bus,
		log:   log,
	}

	mux.HandleFunc(TaskBrokerNotify, w.handleBrokerNotify)
	mux.HandleFunc(TaskExpiryReminder, w.handleExpiryReminder)

	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleBrokerNotify(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseBrokerNotifyPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	brokerID, err := uuid.Parse(payload.BrokerID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	return w.bus.PublishSync(ctx, events.BrokerNotificationDue{
		BaseEvent: events.NewBaseEvent(),
		Kind:      payload.Kind,
		LeadID:    leadID,
		BrokerID:  brokerID,
		Territory: payload.Territory,
		ExpiresAt: payload.ExpiresAt,
	})
}

// handleExpiryReminder only fires while the same referral is still waiting
// on the same broker; anything else means the reminder is stale.
func (w *Worker) handleExpiryReminder(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseExpiryReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	brokerID, err := uuid.Parse(payload.BrokerID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	lead, err := w.leads.GetLead(ctx, leadID)
	if err != nil {
		return err
	}

	if lead.Status != domain.StatusReferred || !lead.IsAssignedTo(brokerID) {
		return nil
	}
	if lead.ReferralExpiresAt == nil || !lead.ReferralExpiresAt.Equal(payload.ExpiresAt) {
		return nil
	}

	return w.bus.PublishSync(ctx, events.ReferralExpiryReminderDue{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		BrokerID:  brokerID,
		Territory: payload.Territory,
		ExpiresAt: payload.ExpiresAt,
	})
}
