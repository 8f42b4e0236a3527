// Package metrics provides the Prometheus collectors shared by the cache
// repository and the transaction coordinator. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors. Cache collectors are labelled by entity type.
type Metrics struct {
	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheWrites    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	// Transaction metrics
	Commits              prometheus.Counter
	Rollbacks            prometheus.Counter
	CompensationsRun     prometheus.Counter
	CompensationFailures prometheus.Counter
}

// New creates the collectors under namespace and registers them on reg.
// A nil reg leaves them unregistered, which is handy in tests.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Lookups answered from the derived cache",
		}, []string{"entity"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Lookups that missed the derived cache, including stale filter keys",
		}, []string{"entity"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Records written to the derived cache",
		}, []string{"entity"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Records evicted from the derived cache, cascades included",
		}, []string{"entity"}),

		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "commits_total",
			Help:      "Transactions committed",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "rollbacks_total",
			Help:      "Transactions rolled back",
		}),
		CompensationsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "compensations_total",
			Help:      "Compensating actions replayed during rollback",
		}),
		CompensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "compensation_failures_total",
			Help:      "Compensating actions that failed during rollback",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CacheHits, m.CacheMisses, m.CacheWrites, m.CacheEvictions,
		m.Commits, m.Rollbacks, m.CompensationsRun, m.CompensationFailures,
	}
}

func (m *Metrics) Hit(entity string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(entity).Inc()
}

func (m *Metrics) Miss(entity string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(entity).Inc()
}

func (m *Metrics) Write(entity string) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(entity).Inc()
}

func (m *Metrics) Evict(entity string) {
	if m == nil {
		return
	}
	m.CacheEvictions.WithLabelValues(entity).Inc()
}

func (m *Metrics) Commit() {
	if m == nil {
		return
	}
	m.Commits.Inc()
}

// Rollback records one rollback that replayed ran compensations, failed of which errored.
func (m *Metrics) Rollback(ran, failed int) {
	if m == nil {
		return
	}
	m.Rollbacks.Inc()
	m.CompensationsRun.Add(float64(ran))
	m.CompensationFailures.Add(float64(failed))
}
