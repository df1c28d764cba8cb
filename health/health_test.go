package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	assert.True(t, NewHealthy("a", "").IsHealthy())
	assert.True(t, NewDegraded("a", "").IsDegraded())
	assert.True(t, NewUnhealthy("a", "").IsUnhealthy())
	assert.False(t, NewUnhealthy("a", "").Healthy)
}

func TestAggregate(t *testing.T) {
	healthy := NewHealthy("s1", "")
	degraded := NewDegraded("s2", "slow")
	unhealthy := NewUnhealthy("s3", "down")

	agg := Aggregate("registry", []Status{healthy, healthy})
	assert.True(t, agg.IsHealthy())
	assert.Len(t, agg.SubStatuses, 2)

	agg = Aggregate("registry", []Status{healthy, degraded})
	assert.True(t, agg.IsDegraded())

	agg = Aggregate("registry", []Status{healthy, degraded, unhealthy})
	assert.True(t, agg.IsUnhealthy())

	agg = Aggregate("registry", nil)
	assert.True(t, agg.IsHealthy())
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()

	m.Update("source-1", NewHealthy("", "probe ok"))
	m.Update("source-2", NewUnhealthy("", "timeout"))

	got, ok := m.Get("source-1")
	require.True(t, ok)
	assert.Equal(t, "source-1", got.Component)
	assert.True(t, got.IsHealthy())
	assert.False(t, got.Timestamp.IsZero())

	assert.Equal(t, 2, m.Count())
	assert.Len(t, m.GetAll(), 2)

	agg := m.AggregateHealth("engine")
	assert.True(t, agg.IsUnhealthy())
	assert.Equal(t, "1 healthy, 0 degraded, 1 unhealthy of 2 components", agg.Message)

	m.Remove("source-2")
	_, ok = m.Get("source-2")
	assert.False(t, ok)
	assert.True(t, m.AggregateHealth("engine").IsHealthy())
}
