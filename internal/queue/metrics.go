package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for task stores.
type Metrics struct {
	EnqueuedTotal    *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	RejectedTotal    *prometheus.CounterVec
	RepliesTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers queue metrics on the default registry.
//
// Registration happens once per process; later calls return the same
// collectors.
//
// Metrics:
//   - agentq_queue_enqueued_total{namespace,task_type}
//   - agentq_queue_transitions_total{namespace,from,to}
//   - agentq_queue_rejected_total{namespace,operation,code}
//   - agentq_queue_replies_total{namespace}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return globalMetrics
}

// NewMetricsWithRegistry registers queue metrics on reg. Tests use it with a
// fresh prometheus.NewRegistry().
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		EnqueuedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentq_queue_enqueued_total",
				Help: "Total number of tasks enqueued",
			},
			[]string{"namespace", "task_type"},
		),
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentq_queue_transitions_total",
				Help: "Total number of applied task status transitions",
			},
			[]string{"namespace", "from", "to"},
		),
		RejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentq_queue_rejected_total",
				Help: "Total number of rejected store operations",
			},
			[]string{"namespace", "operation", "code"},
		),
		RepliesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentq_queue_replies_total",
				Help: "Total number of accepted replies",
			},
			[]string{"namespace"},
		),
	}
}

func (m *Metrics) enqueued(ns, taskType string) {
	if m == nil {
		return
	}
	m.EnqueuedTotal.WithLabelValues(ns, taskType).Inc()
}

func (m *Metrics) transition(ns string, from, to Status) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(ns, string(from), string(to)).Inc()
}

func (m *Metrics) rejected(ns, op string, err error) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(ns, op, string(CodeOf(err))).Inc()
}

func (m *Metrics) replied(ns string) {
	if m == nil {
		return
	}
	m.RepliesTotal.WithLabelValues(ns).Inc()
}
