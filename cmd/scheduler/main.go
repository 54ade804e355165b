package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"broker_portal_backend/internal/adapters"
	brokersrepo "broker_portal_backend/internal/brokers/repository"
	brokersvc "broker_portal_backend/internal/brokers/service"
	"broker_portal_backend/internal/email"
	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/notification"
	"broker_portal_backend/internal/referrals"
	"broker_portal_backend/internal/scheduler"
	"broker_portal_backend/internal/sms"
	"broker_portal_backend/platform/config"
	"broker_portal_backend/platform/db"
	"broker_portal_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		panic("failed to initialize task client: " + err.Error())
	}
	defer func() { _ = taskClient.Close() }()

	brokerRepo := brokersrepo.New(pool)
	directory := adapters.NewBrokerDirectoryAdapter(brokerRepo)
	referralService, _ := referrals.NewService(pool, directory, eventBus, cfg, log)

	notificationModule := notification.New(sender, cfg, log)
	notificationModule.SetBrokerContacts(adapters.NewBrokerContactReader(brokersvc.New(brokerRepo, cfg.GetSMSDefaultRegion())))
	if smsClient := sms.NewClient(cfg, log); smsClient != nil {
		notificationModule.SetSMSSender(smsClient)
	}
	notificationModule.SetTaskScheduler(taskClient, cfg.GetReferralReminderLead())
	notificationModule.RegisterHandlers(eventBus)

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	interval := cfg.GetReferralSweepInterval()
	lease := scheduler.NewLease(rdb, scheduler.SweepLeaseKey, interval)
	sweeper := scheduler.NewReferralExpirySweeper(referralService, lease, interval, log)
	go sweeper.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, referralService, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
