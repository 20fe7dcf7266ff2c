package documents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderScheduler periodically nudges reviewers holding overdue documents
type ReminderScheduler struct {
	cron     *cron.Cron
	service  Service
	logger   *zap.Logger
	schedule string
	timeout  time.Duration
	mu       sync.Mutex
	running  bool
}

// NewReminderScheduler takes a six-field cron expression (seconds first)
func NewReminderScheduler(service Service, logger *zap.Logger, schedule string, timeout time.Duration) *ReminderScheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ReminderScheduler{
		cron:     cron.New(cron.WithSeconds()),
		service:  service,
		logger:   logger,
		schedule: schedule,
		timeout:  timeout,
	}
}

func (s *ReminderScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("reminder scheduler already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("Reminder scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running job to finish
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Reminder scheduler stopped")
}

// RunOnce sends one round of reminders and returns how many were sent
func (s *ReminderScheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sent, err := s.service.RemindOverdue(ctx)
	if err != nil {
		s.logger.Error("Failed to send review reminders", zap.Error(err))
		return 0
	}
	if sent > 0 {
		s.logger.Info("Review reminders sent", zap.Int("count", sent))
	}
	return sent
}
