package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers jobs at a fixed local time of day. It is an interface
// so tests can invoke job callbacks directly instead of waiting on the
// wall clock.
type Scheduler interface {
	// ScheduleDaily registers job to run every day at localTime ("HH:MM")
	// in the scheduler's timezone.
	ScheduleDaily(localTime string, name string, job func(ctx context.Context)) error
	Start()
	// Stop halts scheduling; the returned context is done once running
	// jobs have finished.
	Stop() context.Context
}

// CronScheduler is the production Scheduler, backed by robfig/cron pinned
// to a fixed timezone. Each run gets its own timeout context and a panic
// or error in a job is logged, never propagated: the schedule must survive
// to its next tick.
type CronScheduler struct {
	cron       *cron.Cron
	jobTimeout time.Duration
	logger     *slog.Logger
}

var _ Scheduler = (*CronScheduler)(nil)

func NewCronScheduler(loc *time.Location, jobTimeout time.Duration, logger *slog.Logger) *CronScheduler {
	if logger == nil {
		panic("logger cannot be nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if jobTimeout <= 0 {
		jobTimeout = 1 * time.Hour
	}
	return &CronScheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		jobTimeout: jobTimeout,
		logger:     logger.With("component", "CronScheduler"),
	}
}

func (s *CronScheduler) ScheduleDaily(localTime string, name string, job func(ctx context.Context)) error {
	spec, err := dailySpec(localTime)
	if err != nil {
		return err
	}

	jobID, err := s.cron.AddJob(spec, cron.FuncJob(func() {
		jobLogger := s.logger.With("job_name", name)
		jobLogger.Info("Cron triggered: running scheduled job.")

		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				jobLogger.Error("Scheduled job panicked", slog.Any("panic", r))
			}
		}()

		job(ctx)
		jobLogger.Info("Scheduled job finished.")
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule job %q at %q: %w", name, localTime, err)
	}

	s.logger.Info("Scheduled daily job", "job_name", name, "local_time", localTime, "spec", spec, "job_id", jobID)
	return nil
}

func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cron scheduler started.")
}

func (s *CronScheduler) Stop() context.Context {
	s.logger.Info("Stopping cron scheduler...")
	return s.cron.Stop()
}

// dailySpec converts "HH:MM" into a five-field cron spec.
func dailySpec(localTime string) (string, error) {
	parts := strings.Split(localTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid trigger time %q, expected HH:MM", localTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid trigger hour in %q", localTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid trigger minute in %q", localTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
