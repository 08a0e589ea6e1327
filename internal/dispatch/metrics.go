package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters and histograms for the
// dispatch cycle.
type Metrics struct {
	CyclesTotal     prometheus.Counter
	FetchErrors     prometheus.Counter
	AlertsIngested  *prometheus.CounterVec // labels: result={new,updated}
	DigestsSent     *prometheus.CounterVec // labels: kind={new,update,expires}
	DigestSize      prometheus.Histogram
	SendFailures    *prometheus.CounterVec // labels: channel={email,sms}
	SubsUnresolved  prometheus.Counter
	CycleDuration   prometheus.Histogram
}

// NewMetrics creates and registers all dispatch metrics with the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_notify",
			Name:      "dispatch_cycles_total",
			Help:      "Total dispatch cycles started.",
		}),
		FetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_notify",
			Name:      "feed_fetch_errors_total",
			Help:      "Total cycles aborted by a feed fetch failure.",
		}),
		AlertsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_notify",
			Name:      "alerts_ingested_total",
			Help:      "Alerts upserted from the feed, by first-sight vs update.",
		}, []string{"result"}),
		DigestsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_notify",
			Name:      "digests_sent_total",
			Help:      "Digest notifications sent, by lifecycle kind.",
		}, []string{"kind"}),
		DigestSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_notify",
			Name:      "digest_size_alerts",
			Help:      "Number of alerts batched into one digest.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_notify",
			Name:      "send_failures_total",
			Help:      "Per-channel send failures (still recorded as attempted).",
		}, []string{"channel"}),
		SubsUnresolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_notify",
			Name:      "subscriptions_unresolvable_total",
			Help:      "Subscriptions skipped because their area has no reference row.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_notify",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-upsert-match-notify cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
