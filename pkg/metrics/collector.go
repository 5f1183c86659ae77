package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of handled bot updates labeled by kind and status",
		},
		[]string{"kind", "status"},
	)
	updateDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "update_duration_seconds",
			Help:    "Duration of bot update handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	photosProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photos_processed_total",
			Help: "Total number of background removal requests by outcome",
		},
		[]string{"status"},
	)
	creditsConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_consumed_total",
			Help: "Total number of daily credits consumed",
		},
	)
	quotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Total number of requests rejected because the daily limit was reached",
		},
	)
	mirrorSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_syncs_total",
			Help: "Total number of status mirror publishes by outcome",
		},
		[]string{"outcome"},
	)
	broadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total number of broadcast deliveries by status",
		},
		[]string{"status"},
	)
	knownUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "known_users",
			Help: "Current size of the user registry",
		},
	)
	bannedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "banned_users",
			Help: "Current size of the ban list",
		},
	)
)

// RecordUpdate increments update counters and records handling duration.
func RecordUpdate(kind, status string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botUpdatesTotal.WithLabelValues(kind, status).Inc()
	updateDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPhotoProcessed tracks a background removal attempt outcome.
func RecordPhotoProcessed(status string) {
	if status == "" {
		status = "unknown"
	}

	photosProcessedTotal.WithLabelValues(status).Inc()
}

// RecordCreditConsumed tracks a consumed daily credit.
func RecordCreditConsumed() {
	creditsConsumedTotal.Inc()
}

// RecordQuotaRejection tracks a request rejected by the daily limit.
func RecordQuotaRejection() {
	quotaRejectionsTotal.Inc()
}

// RecordMirrorSync tracks a status mirror publish outcome.
func RecordMirrorSync(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}

	mirrorSyncsTotal.WithLabelValues(outcome).Inc()
}

// RecordBroadcastDelivery tracks a single broadcast recipient outcome.
func RecordBroadcastDelivery(status string) {
	if status == "" {
		status = "unknown"
	}

	broadcastDeliveriesTotal.WithLabelValues(status).Inc()
}

// Counter abstracts the registry views polled for gauge metrics.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// RegistryCollector periodically polls registry sizes and emits gauge metrics.
type RegistryCollector struct {
	registry Counter
	banList  Counter
}

// NewRegistryCollector builds a collector over the user registry and ban list.
func NewRegistryCollector(registry, banList Counter) *RegistryCollector {
	return &RegistryCollector{registry: registry, banList: banList}
}

// Run polls the sets every 30 seconds until ctx is cancelled.
func (c *RegistryCollector) Run(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}
}

func (c *RegistryCollector) collect(ctx context.Context) {
	if c.registry != nil {
		if count, err := c.registry.Count(ctx); err == nil {
			knownUsers.Set(float64(count))
		}
	}

	if c.banList != nil {
		if count, err := c.banList.Count(ctx); err == nil {
			bannedUsers.Set(float64(count))
		}
	}
}
