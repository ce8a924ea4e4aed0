package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"renewal_notifier/internal/app"
	domainMail "renewal_notifier/internal/domain/mail"
	"renewal_notifier/internal/domain/renewal"
	"renewal_notifier/internal/infra/config"
	"renewal_notifier/internal/infra/database"
	"renewal_notifier/internal/infra/mail"
	"renewal_notifier/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// runner holds everything that outlives a single batch run.
type runner struct {
	cfg      *config.AppConfig
	logger   logrus.FieldLogger
	policy   *renewal.Policy
	renderer *app.Renderer
	// newSender is called once per run with the run-scoped logger.
	newSender func(log logrus.FieldLogger) domainMail.Sender
	// openDB returns a handle and the func that releases it.
	openDB func(ctx context.Context) (*sql.DB, func() error, error)
}

func newRunner(cfg *config.AppConfig, logger logrus.FieldLogger, dryRun bool) (*runner, error) {
	policy := renewal.DefaultPolicy()
	if cfg.RulesFile != "" {
		p, err := renewal.LoadPolicy(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	logger.Infof("Renewal offsets in effect: %v", policy.Offsets())

	newSender := func(log logrus.FieldLogger) domainMail.Sender {
		return mail.NewSMTPSender(cfg, log)
	}
	if dryRun {
		logger.Warn("Dry run: notifications are logged, not sent")
		newSender = func(log logrus.FieldLogger) domainMail.Sender {
			return mail.NewLogSender(log)
		}
	}

	return &runner{
		cfg:    cfg,
		logger: logger,
		policy: policy,
		renderer: app.NewRenderer(app.RendererOptions{
			SignOff:      cfg.MailSenderName,
			SupportEmail: cfg.SupportEmail,
			LogoPath:     cfg.MailLogoPath,
		}),
		newSender: newSender,
		openDB: func(ctx context.Context) (*sql.DB, func() error, error) {
			db, err := database.NewPostgresConnection(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, nil, err
			}
			return db, db.Close, nil
		},
	}, nil
}

// run performs one batch for today. The database connection is held for the whole
// run and released on every exit path.
func (r *runner) run(ctx context.Context, today time.Time) error {
	log := r.logger.WithField("run_id", uuid.NewString())
	log.Infof("Starting renewal notification run for %s", today.Format(time.DateOnly))

	db, release, err := r.openDB(ctx)
	if err != nil {
		log.WithError(err).Error("Could not connect to the subscription store")
		return err
	}
	defer release()

	ds, err := database.Acquire(ctx, db)
	if err != nil {
		log.WithError(err).Error("Could not acquire a database connection")
		return err
	}
	defer ds.Close()

	m := metrics.NewRun()
	svc := app.NewRenewalService(r.policy, database.NewSubscriptionRepository(ds), r.renderer, r.newSender(log), log, m)

	// A fetch failure has already been logged by the service.
	summary, runErr := svc.Run(ctx, today)

	if r.cfg.PushgatewayURL != "" {
		if err := m.Push(ctx, r.cfg.PushgatewayURL); err != nil {
			log.WithError(err).Warn("Could not push run metrics")
		}
	}

	if runErr != nil {
		return fmt.Errorf("renewal run for %s: %w", today.Format(time.DateOnly), runErr)
	}
	log.Infof("Run finished: %d sent, %d failed", summary.Sent, summary.Failed)
	return nil
}
