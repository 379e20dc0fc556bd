package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total send attempts against the provider, partitioned by result
	sendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_send_attempts_total",
			Help: "Total provider send attempts including in-dispatch retries",
		},
		[]string{"result"},
	)

	// Terminal item outcomes partitioned by status and error code
	itemOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_item_outcomes_total",
			Help: "Terminal campaign item outcomes",
		},
		[]string{"status", "code"},
	)

	// Batches processed, partitioned by whether the campaign drained
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_batches_total",
			Help: "Batch runner invocations",
		},
		[]string{"outcome"},
	)

	// Wall-clock time one item's full pipeline took, including retries
	itemDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_item_duration_seconds",
			Help:    "Per-item dispatch pipeline latency including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func observeOutcome(out *Outcome) {
	code := out.ErrorCode
	if code == "" {
		code = "none"
	}
	itemOutcomesTotal.With(prometheus.Labels{
		"status": out.Status.String(),
		"code":   code,
	}).Inc()
	if out.Status.String() == "sent" {
		sendAttemptsTotal.With(prometheus.Labels{"result": "success"}).Inc()
	} else {
		sendAttemptsTotal.With(prometheus.Labels{"result": "failure"}).Inc()
	}
}
