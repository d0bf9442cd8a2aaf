package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	SchedulerCalls *prometheus.CounterVec

	DeliveriesSent       prometheus.Counter
	DeliveriesFailed     prometheus.Counter
	DeliveriesSuppressed prometheus.Counter
	DeliveryLatency      prometheus.Histogram

	QueueDepthSends   prometheus.Gauge
	QueueDepthRetries prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SchedulerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_calls_total",
			Help: "Calls against the external scheduler service, by operation and outcome.",
		}, []string{"op", "outcome"}),

		DeliveriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deliveries_sent_total",
			Help: "Total number of deliveries accepted by the email provider.",
		}),
		DeliveriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deliveries_failed_total",
			Help: "Total number of permanently failed deliveries (retries exhausted or rejected).",
		}),
		DeliveriesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deliveries_suppressed_total",
			Help: "Total number of deliveries skipped by suppression policy.",
		}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "delivery_send_seconds",
			Help:    "Per-delivery latency from dequeue to provider ack.",
			Buckets: prometheus.DefBuckets,
		}),

		QueueDepthSends: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_queue_depth_sends",
			Help: "Current number of first-attempt items waiting for a worker.",
		}),
		QueueDepthRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_queue_depth_retries",
			Help: "Current number of retry items waiting for a worker.",
		}),
	}

	reg.MustRegister(
		m.SchedulerCalls,
		m.DeliveriesSent,
		m.DeliveriesFailed,
		m.DeliveriesSuppressed,
		m.DeliveryLatency,
		m.QueueDepthSends,
		m.QueueDepthRetries,
	)

	return m
}

// WorkerHooks returns the metric callback functions expected by
// fanout.MetricHooks. Centralises the prometheus observation calls so the
// worker stays import-free.
func (m *Metrics) WorkerHooks() (
	onSent func(time.Duration),
	onFailed func(),
	onSuppressed func(),
) {
	onSent = func(latency time.Duration) {
		m.DeliveriesSent.Inc()
		m.DeliveryLatency.Observe(latency.Seconds())
	}
	onFailed = func() {
		m.DeliveriesFailed.Inc()
	}
	onSuppressed = func() {
		m.DeliveriesSuppressed.Inc()
	}
	return
}

// SchedulerHook returns the observation callback expected by
// scheduler.NewInstrumentedClient.
func (m *Metrics) SchedulerHook() func(op string, err error) {
	return func(op string, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.SchedulerCalls.WithLabelValues(op, outcome).Inc()
	}
}
