package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	messagesTotalCounter    *prometheus.CounterVec
	scoreAppliesCounter     *prometheus.CounterVec
	handleDurationHistogram prometheus.Histogram
	redeliveriesCounter     prometheus.Counter
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		messagesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_messages_total",
				Help: "Total number of consumed messages by final disposition.",
			},
			[]string{"outcome"},
		)

		scoreAppliesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_score_applies_total",
				Help: "Total number of score store writes by result.",
			},
			[]string{"result"},
		)

		handleDurationHistogram = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fraud_handle_duration_seconds",
				Help:    "Duration of per-message handling in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		redeliveriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fraud_redeliveries_total",
				Help: "Total number of deliveries flagged as redelivered by the broker.",
			},
		)

		prometheus.MustRegister(
			messagesTotalCounter,
			scoreAppliesCounter,
			handleDurationHistogram,
			redeliveriesCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, outcome := range []string{"ack", "requeue", "drop"} {
			messagesTotalCounter.WithLabelValues(outcome)
		}
		for _, result := range []string{"applied", "already_scored", "not_found"} {
			scoreAppliesCounter.WithLabelValues(result)
		}
	})
}

func IncMessageOutcome(outcome string) {
	Init()
	messagesTotalCounter.WithLabelValues(outcome).Inc()
}

func IncScoreApply(result string) {
	Init()
	scoreAppliesCounter.WithLabelValues(result).Inc()
}

func ObserveHandleDuration(d time.Duration) {
	Init()
	handleDurationHistogram.Observe(d.Seconds())
}

func IncRedeliveries() {
	Init()
	redeliveriesCounter.Inc()
}
