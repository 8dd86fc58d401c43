package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outbox metrics
var (
	// OutboxPendingEvents gauges the number of pending outbox rows.
	OutboxPendingEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_events",
			Help: "Number of pending events in the outbox",
		},
	)

	// OutboxFailedEvents gauges the number of terminally failed outbox rows.
	OutboxFailedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_failed_events",
			Help: "Number of terminally failed events in the outbox",
		},
	)

	// OutboxAppendedTotal counts events appended to the outbox by kind.
	OutboxAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_appended_total",
			Help: "Total number of events appended to the outbox",
		},
		[]string{"kind"},
	)
)

// Relay metrics
var (
	// RelayPublishedTotal counts events published to the stream by kind.
	RelayPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_published_total",
			Help: "Total number of outbox events published to the stream",
		},
		[]string{"kind"},
	)

	// RelayPublishErrorsTotal counts publish failures by kind.
	RelayPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_publish_errors_total",
			Help: "Total number of failed publish attempts",
		},
		[]string{"kind"},
	)

	// RelayReclaimedTotal counts rows reclaimed from the publishing state.
	RelayReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_reclaimed_total",
			Help: "Total number of stuck publishing rows reclaimed",
		},
	)

	// RelayBatchDuration tracks the duration of one relay iteration.
	RelayBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_batch_duration_seconds",
			Help:    "Duration of a relay drain iteration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)

// Consumer metrics
var (
	// ConsumerProcessedTotal counts entries fully processed by kind.
	ConsumerProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_processed_total",
			Help: "Total number of stream entries processed successfully",
		},
		[]string{"kind"},
	)

	// ConsumerDuplicatesTotal counts redeliveries short-circuited by the ledger.
	ConsumerDuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_duplicates_total",
			Help: "Total number of entries acked as already processed",
		},
		[]string{"kind"},
	)

	// ConsumerParkedTotal counts entries parked in the dead-letter store.
	ConsumerParkedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_parked_total",
			Help: "Total number of entries parked after exhausting attempts",
		},
		[]string{"kind"},
	)

	// HandlerDuration tracks handler invocation latency by kind and handler.
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handler_duration_seconds",
			Help:    "Duration of handler invocations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind", "handler"},
	)

	// HandlerErrorsTotal counts handler errors by kind and handler.
	HandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_errors_total",
			Help: "Total number of handler invocation errors",
		},
		[]string{"kind", "handler"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics and /health on the given address.
// It blocks until the server stops; run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}
	return server.ListenAndServe()
}

// ObserveHandler records one handler invocation.
// Side effects: records Prometheus metrics.
func ObserveHandler(kind, handler string, duration time.Duration, err error) {
	HandlerDuration.WithLabelValues(kind, handler).Observe(duration.Seconds())
	if err != nil {
		HandlerErrorsTotal.WithLabelValues(kind, handler).Inc()
	}
}
