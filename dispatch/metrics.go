package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/forge/metric"
)

// dispatchMetrics holds Prometheus metrics for the dispatcher.
type dispatchMetrics struct {
	plansReceived   prometheus.Counter
	executionsTotal *prometheus.CounterVec
	duplicatesTotal prometheus.Counter
	executeDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
}

// newDispatchMetrics creates and registers dispatcher metrics. A nil
// registry disables metrics.
func newDispatchMetrics(registry *metric.Registry) *dispatchMetrics {
	if registry == nil {
		return nil
	}

	m := &dispatchMetrics{
		plansReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatch",
			Name:      "plans_received_total",
			Help:      "Total action plans received from the queue",
		}),

		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatch",
			Name:      "executions_total",
			Help:      "Total executions by action type and result",
		}, []string{"action_type", "result"}),

		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatch",
			Name:      "duplicates_total",
			Help:      "Plans skipped because their dedupe key was already reserved",
		}),

		executeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatch",
			Name:      "execute_duration_seconds",
			Help:      "Time spent executing one plan including retries",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0},
		}, []string{"action_type"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Total dispatcher errors by stage",
		}, []string{"stage"}),
	}

	registry.MustRegister(
		m.plansReceived,
		m.executionsTotal,
		m.duplicatesTotal,
		m.executeDuration,
		m.errorsTotal,
	)
	return m
}

func (m *dispatchMetrics) recordReceived() {
	if m == nil {
		return
	}
	m.plansReceived.Inc()
}

func (m *dispatchMetrics) recordExecution(actionType, result string) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(actionType, result).Inc()
}

func (m *dispatchMetrics) recordDuplicate() {
	if m == nil {
		return
	}
	m.duplicatesTotal.Inc()
}

func (m *dispatchMetrics) recordDuration(actionType string, seconds float64) {
	if m == nil {
		return
	}
	m.executeDuration.WithLabelValues(actionType).Observe(seconds)
}

func (m *dispatchMetrics) recordError(stage string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(stage).Inc()
}
