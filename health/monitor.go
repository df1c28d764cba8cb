package health

import (
	"fmt"
	"sync"
	"time"
)

// Monitor tracks the health of named engine components (sources, pipelines,
// subsystems). It owns the status map; callers always receive copies.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update records the latest status for a named component. The component name
// and timestamp are stamped onto the status if missing.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		result[name] = status
	}
	return result
}

// Remove stops tracking a component, typically on deregistration
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
}

// AggregateHealth rolls every tracked component into one system-level status
// with a per-state breakdown in the message.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	m.mu.RUnlock()

	agg := Aggregate(systemName, subStatuses)
	if len(subStatuses) > 0 {
		var healthy, degraded, unhealthy int
		for _, sub := range subStatuses {
			switch {
			case sub.IsUnhealthy():
				unhealthy++
			case sub.IsDegraded():
				degraded++
			default:
				healthy++
			}
		}
		agg.Message = fmt.Sprintf("%d healthy, %d degraded, %d unhealthy of %d components",
			healthy, degraded, unhealthy, len(subStatuses))
	}
	return agg
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}
