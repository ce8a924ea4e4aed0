// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	domainMail "renewal_notifier/internal/domain/mail"
	"renewal_notifier/internal/domain/renewal"
	"renewal_notifier/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// ErrDataFetch marks a failure of the eligibility query layer. It is fatal for the run.
var ErrDataFetch = errors.New("eligibility data fetch failed")

type DataFetchError struct {
	Rule  renewal.Rule
	Cause error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("%v for rule %s (target %s): %v", ErrDataFetch, e.Rule, e.Rule.TargetDate.Format(time.DateOnly), e.Cause)
}

func (e *DataFetchError) Is(target error) bool { return target == ErrDataFetch }

func (e *DataFetchError) Unwrap() error { return e.Cause }

// Summary reports what one run did.
type Summary struct {
	Rules             int
	Matches           int
	Notifications     int
	Sent              int
	Failed            int
	RecipientsMissing int
	AssetsMissing     int
}

// RenewalService runs the renewal reminder batch: select windows, fetch, group, render, send.
type RenewalService struct {
	policy   *renewal.Policy
	repo     renewal.Repository
	renderer *Renderer
	sender   domainMail.Sender
	logger   logrus.FieldLogger
	metrics  *metrics.Run
}

func NewRenewalService(
	policy *renewal.Policy,
	repo renewal.Repository,
	renderer *Renderer,
	sender domainMail.Sender,
	logger logrus.FieldLogger,
	m *metrics.Run, // optional
) *RenewalService {
	if m == nil {
		m = metrics.NewRun()
	}
	return &RenewalService{
		policy:   policy,
		repo:     repo,
		renderer: renderer,
		sender:   sender,
		logger:   logger,
		metrics:  m,
	}
}

// Run evaluates every rule for today and sends one message per (recipient, offset).
// Only data fetch failures are returned; delivery failures are logged and counted.
func (s *RenewalService) Run(ctx context.Context, today time.Time) (Summary, error) {
	notes, summary, err := s.Collect(ctx, today)
	if err != nil {
		return summary, err
	}
	s.Dispatch(ctx, notes, &summary)
	s.metrics.MarkSuccess(time.Now())

	s.logger.WithFields(logrus.Fields{
		"notifications":      summary.Notifications,
		"sent":               summary.Sent,
		"failed":             summary.Failed,
		"recipients_missing": summary.RecipientsMissing,
	}).Info("Renewal notification run complete")
	return summary, nil
}

// Collect runs the fetch phase for every rule and groups the results. It stops at the first
// fetch error, before anything is sent.
func (s *RenewalService) Collect(ctx context.Context, today time.Time) (*renewal.Notifications, Summary, error) {
	var summary Summary
	rules := s.policy.RulesFor(today)
	summary.Rules = len(rules)
	s.logger.Infof("Evaluating %d renewal rules for %s", len(rules), renewal.DateOnly(today).Format(time.DateOnly))

	results := make([]renewal.RuleResult, 0, len(rules))
	for _, rule := range rules {
		matches, err := s.repo.FetchEligible(ctx, rule)
		if err != nil {
			s.logger.WithError(err).Errorf("Failed to fetch eligible subscriptions for %s", rule)
			return nil, summary, &DataFetchError{Rule: rule, Cause: err}
		}
		s.logger.Infof("Rule %s (renewing %s): %d eligible rows", rule, rule.TargetDate.Format(time.DateOnly), len(matches))
		summary.Matches += len(matches)
		s.metrics.Matches.WithLabelValues(strconv.Itoa(rule.OffsetDays)).Add(float64(len(matches)))
		results = append(results, renewal.RuleResult{Rule: rule, Matches: matches})
	}

	notes, skipped := renewal.Group(results)
	for _, err := range skipped {
		var missing *renewal.RecipientMissingError
		if errors.As(err, &missing) {
			s.logger.WithFields(logrus.Fields{
				"company":         missing.Item.CompanyName,
				"company_id":      missing.Item.CompanyID,
				"subscription_id": missing.Item.SubscriptionID,
				"offset_days":     missing.OffsetDays,
			}).Warnf("No email found for company '%s', skipping email.", missing.Item.CompanyName)
		}
	}
	summary.RecipientsMissing = len(skipped)
	summary.Notifications = notes.Len()
	s.metrics.RecipientsMissing.Add(float64(len(skipped)))
	s.metrics.Notifications.Add(float64(notes.Len()))

	s.logger.Infof("Computed %d notifications covering %d subscriptions", notes.Len(), notes.ItemCount())
	return notes, summary, nil
}

// Dispatch renders and sends each notification independently. A failure for one recipient
// never stops the others.
func (s *RenewalService) Dispatch(ctx context.Context, notes *renewal.Notifications, summary *Summary) {
	for _, n := range notes.All() {
		offset := strconv.Itoa(n.Key.OffsetDays)
		log := s.logger.WithFields(logrus.Fields{
			"to":          n.Key.Email,
			"offset_days": n.Key.OffsetDays,
			"items":       len(n.Items),
		})

		msg, err := s.renderer.Render(n)
		if err != nil {
			// Only optional decoration can fail; msg is still complete.
			log.WithError(err).Warn("Rendering without optional asset")
			summary.AssetsMissing++
			s.metrics.AssetsMissing.Inc()
		}

		if err := s.sender.Send(ctx, msg); err != nil {
			log.WithError(err).Errorf("Failed to send email to %s", n.Key.Email)
			summary.Failed++
			s.metrics.Failed.WithLabelValues(offset).Inc()
			continue
		}
		log.Infof("Email sent to %s (%d days out, %d subscriptions).", n.Key.Email, n.Key.OffsetDays, len(n.Items))
		summary.Sent++
		s.metrics.Sent.WithLabelValues(offset).Inc()
	}
}
