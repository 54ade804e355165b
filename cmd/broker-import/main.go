package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"broker_portal_backend/internal/brokers/importer"
	brokersrepo "broker_portal_backend/internal/brokers/repository"
	brokersvc "broker_portal_backend/internal/brokers/service"
	"broker_portal_backend/platform/config"
	"broker_portal_backend/platform/db"
	"broker_portal_backend/platform/logger"
	"broker_portal_backend/platform/validator"
)

func main() {
	file := flag.String("file", "brokers.yaml", "path to the broker roster")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*file)
	if err != nil {
		log.Error("failed to open roster", "file", *file, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	roster, err := importer.Parse(f)
	if err != nil {
		log.Error("failed to read roster", "file", *file, "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := brokersvc.New(brokersrepo.New(pool), cfg.GetSMSDefaultRegion())
	summary := importer.Run(ctx, svc, validator.New(), roster, log)

	log.Info("broker import finished", "file", *file, "imported", summary.Imported, "failed", summary.Failed)
	if summary.Failed > 0 {
		pool.Close()
		os.Exit(2)
	}
}
