package observ

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_fetches_total",
		Help: "Provider fetch attempts by api name and result.",
	}, []string{"api", "result"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketdata_fetch_duration_seconds",
		Help:    "Provider fetch latency by api name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"api"})

	admissionDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_admission_denied_total",
		Help: "Denied admission checks by api name and blocking reason.",
	}, []string{"api", "reason"})

	backoffLocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_backoff_locks_total",
		Help: "Backoff locks applied by api name and failure kind.",
	}, []string{"api", "kind"})

	backoffRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketdata_backoff_remaining_seconds",
		Help: "Seconds until the current backoff lock expires, zero when unlocked.",
	}, []string{"api"})

	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_cache_events_total",
		Help: "Cache lookups and mutations by outcome.",
	}, []string{"event"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketdata_queue_depth",
		Help: "Queued requests by api name and priority tier.",
	}, []string{"api", "priority"})

	usageDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketdata_usage_entries_dropped_total",
		Help: "Usage entries dropped because the sink buffer was full.",
	})
)

func RecordFetch(api, result string, d time.Duration) {
	fetchesTotal.WithLabelValues(api, result).Inc()
	fetchDuration.WithLabelValues(api).Observe(d.Seconds())
}

func RecordAdmissionDenied(api, reason string) {
	admissionDenied.WithLabelValues(api, reason).Inc()
}

func RecordBackoffLock(api, kind string) {
	backoffLocks.WithLabelValues(api, kind).Inc()
}

func SetBackoffRemaining(api string, seconds float64) {
	backoffRemaining.WithLabelValues(api).Set(seconds)
}

func RecordCacheEvent(event string) {
	cacheEvents.WithLabelValues(event).Inc()
}

func SetQueueDepth(api, priority string, depth int) {
	queueDepth.WithLabelValues(api, priority).Set(float64(depth))
}

func RecordUsageDropped() {
	usageDropped.Inc()
}

// Handler exposes the Prometheus registry for the /metrics mount.
func Handler() http.Handler {
	return promhttp.Handler()
}
