package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const cleanupJobTimeout = 2 * time.Minute

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	cleanup  *HoldCleanupService
	schedule string
	logger   *logrus.Logger
}

// NewCronService creates a new CronService.
// schedule uses the six-field format: second minute hour day month weekday.
func NewCronService(cleanup *HoldCleanupService, schedule string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		cleanup:  cleanup,
		schedule: schedule,
		logger:   logger,
	}
}

// Start schedules the jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.schedule, s.cleanupHoldsJob); err != nil {
		return fmt.Errorf("failed to schedule hold cleanup job: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: purge stale booking holds")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// cleanupHoldsJob deletes holds well past their TTL
func (s *CronService) cleanupHoldsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupJobTimeout)
	defer cancel()

	startTime := time.Now()
	purged, err := s.cleanup.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Hold cleanup failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"purged":   purged,
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Hold cleanup finished")
}

// RunCleanupNow runs the hold cleanup job immediately
func (s *CronService) RunCleanupNow() {
	s.logger.Info("[MANUAL] Running hold cleanup now...")
	s.cleanupHoldsJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
