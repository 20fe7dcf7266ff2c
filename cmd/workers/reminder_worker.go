package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"review-portal/review-portal-backend/internal/app"
	"review-portal/review-portal-backend/internal/config"
	"review-portal/review-portal-backend/internal/documents"
)

// The reminder worker re-notifies current reviewers of documents whose
// review is past its due date.
func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single reminder pass and exit")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if !cfg.SharedInbox() || strings.EqualFold(cfg.Repository.Backend, "memory") {
		logger.Fatal("Reminder worker needs shared document and notification stores; set REMINDERS_IN_API for in-memory setups",
			zap.String("repository", cfg.Repository.Backend),
			zap.String("notification_store", cfg.Notifications.Store))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	portal, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer portal.Close()

	scheduler := documents.NewReminderScheduler(portal.Documents, logger,
		cfg.Workers.ReminderSchedule, cfg.Workers.ReminderTimeout.Duration)

	if *once {
		sent := scheduler.RunOnce(ctx)
		logger.Info("Reminder pass finished", zap.Int("reminders_sent", sent))
		return
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start reminder scheduler", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down reminder worker...")
	scheduler.Stop()
}
