package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one complete notifier run.
type Job func(ctx context.Context) error

// RenewalScheduler triggers the renewal job on a cron spec for long-running deployments.
type RenewalScheduler struct {
	cronEngine *cron.Cron
	job        Job
	cronSpec   string
	jobTimeout time.Duration
	logger     logrus.FieldLogger
}

func NewRenewalScheduler(job Job, cronSpec string, jobTimeout time.Duration, logger logrus.FieldLogger) *RenewalScheduler {
	return &RenewalScheduler{
		// A run that is still going when the next tick fires is not started twice.
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		job:        job,
		cronSpec:   cronSpec,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Start registers the job and starts the cron engine.
func (s *RenewalScheduler) Start() error {
	s.logger.Infof("Starting renewal scheduler with spec %q", s.cronSpec)

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for renewal notifications.")
		s.execute()
	})
	if err != nil {
		return fmt.Errorf("could not add renewal cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Renewal scheduler started.")
	return nil
}

func (s *RenewalScheduler) execute() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()
	if err := s.job(ctx); err != nil {
		s.logger.WithError(err).Error("Renewal notification run failed")
	}
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *RenewalScheduler) Stop() {
	s.logger.Info("Stopping renewal scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Renewal scheduler gracefully stopped.")
}
