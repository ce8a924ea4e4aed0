package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "renewal_notifier"

// Run collects the counters of one notifier run on its own registry, so a batch job can push
// exactly what it did to a Pushgateway.
type Run struct {
	registry *prometheus.Registry

	Matches           *prometheus.CounterVec
	Notifications     prometheus.Counter
	Sent              *prometheus.CounterVec
	Failed            *prometheus.CounterVec
	RecipientsMissing prometheus.Counter
	AssetsMissing     prometheus.Counter
	LastSuccess       prometheus.Gauge
}

func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renewal_notifier_matches_total",
			Help: "Eligible subscription rows fetched, by offset",
		}, []string{"offset_days"}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_notifier_notifications_total",
			Help: "Distinct (recipient, offset) notifications computed",
		}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renewal_notifier_sent_total",
			Help: "Notifications delivered, by offset",
		}, []string{"offset_days"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renewal_notifier_failed_total",
			Help: "Notifications that could not be delivered, by offset",
		}, []string{"offset_days"}),
		RecipientsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_notifier_recipients_missing_total",
			Help: "Eligible subscriptions skipped because no admin contact exists",
		}),
		AssetsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_notifier_assets_missing_total",
			Help: "Messages rendered without their optional inline asset",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renewal_notifier_last_success_timestamp_seconds",
			Help: "Unix time of the last run that completed rule evaluation",
		}),
	}
	r.registry.MustRegister(r.Matches, r.Notifications, r.Sent, r.Failed, r.RecipientsMissing, r.AssetsMissing, r.LastSuccess)
	return r
}

// Gatherer exposes the run registry, mostly for tests.
func (r *Run) Gatherer() prometheus.Gatherer { return r.registry }

// MarkSuccess stamps the last-success gauge.
func (r *Run) MarkSuccess(now time.Time) {
	r.LastSuccess.Set(float64(now.Unix()))
}

// Push sends the run's metrics to the Pushgateway at url, replacing the previous push for this job.
func (r *Run) Push(ctx context.Context, url string) error {
	return push.New(url, jobName).Gatherer(r.registry).PushContext(ctx)
}
