package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversion_events_received_total",
		Help: "The total number of conversion events received by the relay",
	}, []string{"event_name"})

	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversion_events_relayed_total",
		Help: "The total number of conversion events forwarded upstream",
	}, []string{"event_name", "status"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversion_events_rejected_total",
		Help: "The total number of conversion events rejected before forwarding",
	}, []string{"event_name", "reason"})

	RelayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conversion_relay_duration_seconds",
		Help:    "Time taken to validate and forward a conversion event",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_name"})

	EmitterRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversion_emitter_retries_total",
		Help: "The total number of emitter dispatch retries",
	}, []string{"event_name"})

	DedupSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversion_events_deduplicated_total",
		Help: "The total number of dispatches suppressed by the deduplication cache",
	}, []string{"event_name"})

	FailedQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conversion_failed_queue_size",
		Help: "Current number of events in the failed-event store",
	})

	RateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversion_rate_limit_exceeded_total",
		Help: "The total number of track requests dropped by rate limiting",
	})
)
