package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticReporter struct {
	status Status
}

func (r staticReporter) Health() Status { return r.status }

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		subs    []Status
		state   string
		healthy bool
	}{
		{"empty", nil, StateHealthy, true},
		{"all_healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy, true},
		{"one_degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "slow")}, StateDegraded, true},
		{"one_unhealthy", []Status{NewDegraded("a", ""), NewUnhealthy("b", "down")}, StateUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.state, got.State)
			assert.Equal(t, tt.healthy, got.Healthy)
			assert.Equal(t, "system", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestMonitor_WatchPollsFresh(t *testing.T) {
	m := NewMonitor()
	r := &staticReporter{status: NewHealthy("scheduler", "ok")}
	m.Watch("scheduler", r)

	got, ok := m.Get("scheduler")
	assert.True(t, ok)
	assert.True(t, got.Healthy)

	r.status = NewUnhealthy("scheduler", "nats gone")
	got, _ = m.Get("scheduler")
	assert.False(t, got.Healthy)
}

func TestMonitor_SystemMergesPushedAndPolled(t *testing.T) {
	m := NewMonitor()
	m.Watch("scheduler", staticReporter{status: NewHealthy("scheduler", "ok")})
	m.Update("nats", NewUnhealthy("nats", "disconnected"))

	system := m.System("forge")
	assert.Equal(t, StateUnhealthy, system.State)
	assert.False(t, system.Healthy)
	assert.Len(t, system.SubStatuses, 2)
}

func TestMonitor_GetUnknown(t *testing.T) {
	m := NewMonitor()
	_, ok := m.Get("nope")
	assert.False(t, ok)
}
