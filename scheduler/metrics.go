package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/forge/metric"
)

// schedulerMetrics holds Prometheus metrics for the scheduler component.
type schedulerMetrics struct {
	eventsReceived     *prometheus.CounterVec
	evaluationsTotal   *prometheus.CounterVec
	plansPublished     *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	queueDrops         prometheus.Counter
	errorsTotal        *prometheus.CounterVec
}

// newSchedulerMetrics creates and registers scheduler metrics. A nil
// registry disables metrics.
func newSchedulerMetrics(registry *metric.Registry) *schedulerMetrics {
	if registry == nil {
		return nil
	}

	m := &schedulerMetrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "events_received_total",
			Help:      "Total events received for rule evaluation",
		}, []string{"trigger_type"}),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "evaluations_total",
			Help:      "Total rule evaluations performed",
		}, []string{"trigger_type", "result"}),

		plansPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "plans_published_total",
			Help:      "Total action plans published to the dispatch queue",
		}, []string{"action_type"}),

		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating all rules for one event",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "queue_drops_total",
			Help:      "Events dropped because the evaluation queue was full",
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "errors_total",
			Help:      "Total scheduler errors by stage",
		}, []string{"stage"}),
	}

	registry.MustRegister(
		m.eventsReceived,
		m.evaluationsTotal,
		m.plansPublished,
		m.evaluationDuration,
		m.queueDrops,
		m.errorsTotal,
	)
	return m
}

func (m *schedulerMetrics) recordEvent(triggerType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(triggerType).Inc()
}

func (m *schedulerMetrics) recordEvaluation(triggerType, result string) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(triggerType, result).Inc()
}

func (m *schedulerMetrics) recordPlan(actionType string) {
	if m == nil {
		return
	}
	m.plansPublished.WithLabelValues(actionType).Inc()
}

func (m *schedulerMetrics) recordDuration(seconds float64) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(seconds)
}

func (m *schedulerMetrics) recordDrop() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

func (m *schedulerMetrics) recordError(stage string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(stage).Inc()
}
