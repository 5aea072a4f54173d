package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// jobTimeout bounds a single scheduled run
const jobTimeout = 10 * time.Minute

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	cfg       config.SchedulerConfig
	payouts   *PayoutService
	assigner  *AutoAssignmentService
	reminders *ReminderService
	logger    *logrus.Logger
	now       func() time.Time
}

// NewCronService creates a new CronService
func NewCronService(cfg config.SchedulerConfig, payouts *PayoutService, assigner *AutoAssignmentService, reminders *ReminderService, logger *logrus.Logger) *CronService {
	// Seconds precision, UTC so the payout week boundary does not depend on the host
	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))

	return &CronService{
		cron:      c,
		cfg:       cfg,
		payouts:   payouts,
		assigner:  assigner,
		reminders: reminders,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Cron format: second minute hour day month weekday
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"weekly payout batch", s.cfg.WeeklyPayoutBatch, s.weeklyPayoutJob},
		{"assignment retry", s.cfg.AssignmentRetry, s.assignmentRetryJob},
		{"transfer backfill", s.cfg.TransferBackfill, s.transferBackfillJob},
		{"booking reminders", s.cfg.BookingReminders, s.bookingRemindersJob},
	}

	for _, job := range jobs {
		if job.spec == "" {
			s.logger.WithField("job", job.name).Info("Job disabled (no schedule)")
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		s.logger.WithFields(logrus.Fields{"job": job.name, "schedule": job.spec}).Info("✓ Scheduled")
	}

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

// weeklyPayoutJob submits last week's pending transfers and refreshes open batches
func (s *CronService) weeklyPayoutJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	start := time.Now()

	summary, err := s.payouts.RunWeeklyBatch(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Weekly payout batch failed")
		return
	}
	if _, err := s.payouts.RefreshBatchStatuses(ctx); err != nil {
		s.logger.WithError(err).Warn("[CRON] Batch status refresh failed")
	}

	s.logger.WithFields(logrus.Fields{
		"submitted":   summary.Submitted,
		"failed":      summary.Failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("[CRON] ✓ Weekly payout batch done")
}

// assignmentRetryJob assigns paid bookings still waiting and repairs inconsistent rows
func (s *CronService) assignmentRetryJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	healed, err := s.assigner.HealInconsistencies(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("[CRON] Assignment healing had errors")
	}
	assigned, err := s.assigner.RetryUnassigned(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("[CRON] Assignment retry had errors")
	}

	if healed > 0 || assigned > 0 {
		s.logger.WithFields(logrus.Fields{
			"healed":   healed,
			"assigned": assigned,
		}).Info("[CRON] ✓ Assignment retry done")
	}
}

// transferBackfillJob creates transfers missed by the completion side effect
func (s *CronService) transferBackfillJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	created, err := s.payouts.BackfillCompletedBookings(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("[CRON] Transfer backfill had errors")
	}
	if created > 0 {
		s.logger.WithField("created", created).Warn("[CRON] Backfilled missing transfers")
	}
}

// bookingRemindersJob reminds detailers about tomorrow's bookings
func (s *CronService) bookingRemindersJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sent, err := s.reminders.SendReminders(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Booking reminders failed")
		return
	}
	s.logger.WithField("sent", sent).Info("[CRON] ✓ Booking reminders sent")
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
