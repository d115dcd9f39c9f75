// Package metrics exposes Prometheus collectors for the sender pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	senderSentTotal       *prometheus.CounterVec
	senderFailedTotal     *prometheus.CounterVec
	senderErrorsTotal     *prometheus.CounterVec
	senderUnhandledTotal  *prometheus.CounterVec
	senderActiveBatches   *prometheus.GaugeVec
	senderBatchSize       *prometheus.HistogramVec
	senderFlushDuration   *prometheus.HistogramVec
	senderQueuedBatches   *prometheus.GaugeVec
	senderInflightWorkers *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		senderSentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sender_sent_total",
				Help: "Total number of events delivered, labeled by sender.",
			},
			[]string{"sender"},
		)

		senderFailedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sender_failed_total",
				Help: "Total number of events that failed delivery, labeled by sender; failures resolved with a message are counted in sender_errors_total instead.",
			},
			[]string{"sender"},
		)

		senderErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sender_errors_total",
				Help: "Delivery errors partitioned by sender and error message.",
			},
			[]string{"sender", "message"},
		)

		senderUnhandledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sender_unhandled_errors_total",
				Help: "Unexpected errors recovered inside sender goroutines.",
			},
			[]string{"sender"},
		)

		senderActiveBatches = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sender_active_batches",
				Help: "Batches currently accepting events or waiting for a worker.",
			},
			[]string{"sender"},
		)

		senderBatchSize = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sender_batch_size",
				Help:    "Histogram of batch sizes observed at flush time.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"sender"},
		)

		senderFlushDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sender_flush_duration_seconds",
				Help:    "Histogram of sink flush latencies, labeled by sender.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"sender"},
		)

		senderQueuedBatches = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sender_queued_batches",
				Help: "Sealed batches waiting for a publisher worker.",
			},
			[]string{"sender"},
		)

		senderInflightWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sender_inflight_workers",
				Help: "Publisher workers currently inside a sink flush.",
			},
			[]string{"sender"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSent increments the delivered-events counter.
func ObserveSent(sender string) {
	senderSentTotal.WithLabelValues(sender).Inc()
}

// ObserveFailed increments the failed-events counter.
func ObserveFailed(sender string) {
	senderFailedTotal.WithLabelValues(sender).Inc()
}

// ObserveSenderError records a delivery error with its message label.
func ObserveSenderError(sender, message string) {
	senderErrorsTotal.WithLabelValues(sender, message).Inc()
}

// ObserveUnhandled records an unexpected error recovered in a sender goroutine.
func ObserveUnhandled(sender string) {
	senderUnhandledTotal.WithLabelValues(sender).Inc()
}

// IncActiveBatches increments the live-batch gauge.
func IncActiveBatches(sender string) {
	senderActiveBatches.WithLabelValues(sender).Inc()
}

// DecActiveBatches decrements the live-batch gauge.
func DecActiveBatches(sender string) {
	senderActiveBatches.WithLabelValues(sender).Dec()
}

// ObserveBatchSize records the number of futures in a batch at flush time.
func ObserveBatchSize(sender string, size int) {
	senderBatchSize.WithLabelValues(sender).Observe(float64(size))
}

// ObserveFlushDuration records the wall time of one sink flush.
func ObserveFlushDuration(sender string, d time.Duration) {
	senderFlushDuration.WithLabelValues(sender).Observe(d.Seconds())
}

// SetQueuedBatches tracks how many sealed batches await a worker.
func SetQueuedBatches(sender string, n int) {
	senderQueuedBatches.WithLabelValues(sender).Set(float64(n))
}

// IncInflightWorkers marks a worker entering a sink flush.
func IncInflightWorkers(sender string) {
	senderInflightWorkers.WithLabelValues(sender).Inc()
}

// DecInflightWorkers marks a worker leaving a sink flush.
func DecInflightWorkers(sender string) {
	senderInflightWorkers.WithLabelValues(sender).Dec()
}
