package telemetry

import (
	"context"
	"sync"

	"openhands-enterprise/backend/internal/telemetry/domain"
)

// Collector produces metrics for one area of the system. Collectors must be
// safe for concurrent use; Collect is called with the scheduler's context.
type Collector interface {
	Name() string
	// ShouldCollect lets a collector opt out of a collection pass, e.g. when
	// its data source is unavailable.
	ShouldCollect() bool
	Collect(ctx context.Context) ([]domain.Metric, error)
}

// Registry holds the set of collectors consulted on every collection pass.
type Registry struct {
	mu         sync.RWMutex
	collectors []Collector
}

// NewRegistry returns an empty collector registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds a collector. Nil collectors are ignored.
func (r *Registry) Register(c Collector) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// All returns a snapshot of the registered collectors.
func (r *Registry) All() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Collector, len(r.collectors))
	copy(out, r.collectors)
	return out
}

// Counter counts rows backing a single collected metric.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// CountCollector reports one int64 metric from a count source.
type CountCollector struct {
	name    string
	key     string
	counter Counter
}

// NewCountCollector builds a collector that reports the counter's value
// under the given metric key.
func NewCountCollector(name, key string, counter Counter) *CountCollector {
	return &CountCollector{name: name, key: key, counter: counter}
}

// NewUserCountCollector reports the total number of registered users.
func NewUserCountCollector(users Counter) *CountCollector {
	return NewCountCollector("users", "total_users", users)
}

// NewConversationCountCollector reports the total number of conversations.
func NewConversationCountCollector(conversations Counter) *CountCollector {
	return NewCountCollector("conversations", "total_conversations", conversations)
}

func (c *CountCollector) Name() string { return c.name }

func (c *CountCollector) ShouldCollect() bool { return c.counter != nil }

func (c *CountCollector) Collect(ctx context.Context) ([]domain.Metric, error) {
	n, err := c.counter.Count(ctx)
	if err != nil {
		return nil, err
	}
	return []domain.Metric{{Key: c.key, Value: n}}, nil
}
