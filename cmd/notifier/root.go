package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"renewal_notifier/internal/infra/config"
	"renewal_notifier/internal/infra/logger"
	"renewal_notifier/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// scheduledRunTimeout bounds one scheduled run, sends included.
const scheduledRunTimeout = 2 * time.Hour

type options struct {
	date   string
	dryRun bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "renewal-notifier",
		Short:         "Email account admins about subscriptions approaching renewal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			today, err := parseToday(opts.date)
			if err != nil {
				return err
			}
			return withRunner(opts, func(r *runner) error {
				return r.run(cmd.Context(), today)
			})
		},
	}
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "Render and log notifications without sending them")
	root.Flags().StringVar(&opts.date, "date", "", "Evaluate as of this date (YYYY-MM-DD) instead of today (UTC)")

	root.AddCommand(newScheduleCommand(opts))
	return root
}

func newScheduleCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Stay running and send renewal notifications on CRON_SPEC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(opts, func(r *runner) error {
				s := scheduler.NewRenewalScheduler(func(ctx context.Context) error {
					return r.run(ctx, time.Now().UTC())
				}, r.cfg.CronSpec, scheduledRunTimeout, r.logger)
				if err := s.Start(); err != nil {
					return err
				}

				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit // Block until a signal is received

				r.logger.Info("Shutting down renewal notifier...")
				s.Stop()
				return nil
			})
		},
	}
}

// withRunner loads configuration and logging, then hands a ready runner to fn.
// Configuration problems are reported before any query runs.
func withRunner(opts *options, fn func(r *runner) error) error {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("Could not load application configuration")
		return err
	}

	log, closer, err := logger.New(cfg)
	if err != nil {
		logrus.WithError(err).Error("Could not initialize logger")
		return err
	}
	defer closer.Close()

	r, err := newRunner(cfg, log, opts.dryRun)
	if err != nil {
		log.WithError(err).Error("Could not initialize renewal notifier")
		return err
	}
	return fn(r)
}

func parseToday(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", raw, err)
	}
	return d, nil
}
