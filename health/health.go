// Package health tracks per-component health and aggregates it for the
// service's health endpoint.
package health

import (
	"sync"
	"time"
)

const (
	// StateHealthy means the component is fully operational.
	StateHealthy = "healthy"
	// StateDegraded means the component works with reduced capability.
	StateDegraded = "degraded"
	// StateUnhealthy means the component cannot do its job.
	StateUnhealthy = "unhealthy"
)

// Status is the health state of one component or the whole system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	State       string    `json:"state"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"subStatuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries operational counters alongside a status.
type Metrics struct {
	Uptime          time.Duration `json:"uptime"`
	ErrorCount      int64         `json:"errorCount"`
	EventsProcessed int64         `json:"eventsProcessed,omitempty"`
	LastActivity    time.Time     `json:"lastActivity,omitempty"`
}

// NewHealthy builds a healthy status.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		State:     StateHealthy,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewDegraded builds a degraded status. Degraded still reports
// Healthy=true so load balancers keep routing.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		State:     StateDegraded,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnhealthy builds an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		State:     StateUnhealthy,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(m *Metrics) Status {
	s.Metrics = m
	return s
}

// Aggregate folds sub-statuses into one system status: any unhealthy
// sub makes the system unhealthy, any degraded sub makes it degraded.
func Aggregate(component string, subs []Status) Status {
	state := StateHealthy
	for _, sub := range subs {
		switch sub.State {
		case StateUnhealthy:
			state = StateUnhealthy
		case StateDegraded:
			if state == StateHealthy {
				state = StateDegraded
			}
		}
	}

	return Status{
		Component:   component,
		Healthy:     state != StateUnhealthy,
		State:       state,
		Timestamp:   time.Now().UTC(),
		SubStatuses: subs,
	}
}

// Reporter is implemented by components that expose their own health.
type Reporter interface {
	Health() Status
}

// Monitor collects component health for aggregation.
type Monitor struct {
	mu        sync.RWMutex
	reporters map[string]Reporter
	statuses  map[string]Status
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		reporters: make(map[string]Reporter),
		statuses:  make(map[string]Status),
	}
}

// Watch registers a reporter polled on every aggregation.
func (m *Monitor) Watch(name string, r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters[name] = r
}

// Update records a pushed status for components without a Reporter.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now().UTC()
	}
	m.statuses[name] = status
}

// Get returns the last known status for a component. Reporters are
// polled fresh; pushed statuses return as stored.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.reporters[name]; ok {
		return r.Health(), true
	}
	status, ok := m.statuses[name]
	return status, ok
}

// System polls all reporters, merges pushed statuses, and aggregates.
func (m *Monitor) System(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]Status, 0, len(m.reporters)+len(m.statuses))
	for _, r := range m.reporters {
		subs = append(subs, r.Health())
	}
	for _, status := range m.statuses {
		subs = append(subs, status)
	}
	return Aggregate(name, subs)
}
