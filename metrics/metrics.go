// Package metrics exposes Prometheus counters for fusioncache operations. A
// nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fusioncache"

// Metrics groups the counters updated by a cache instance. One Metrics value
// may be shared by several caches; the cache name is a label.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	factoryCalls  *prometheus.CounterVec
	factoryErrors *prometheus.CounterVec
	coalesced     *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Lookups answered from a storage tier.",
		}, []string{"cache", "tier"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Lookups that found no live entry in any tier.",
		}, []string{"cache"}),
		factoryCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factory_calls_total",
			Help:      "Factory invocations started.",
		}, []string{"cache"}),
		factoryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factory_errors_total",
			Help:      "Factory invocations that failed.",
		}, []string{"cache"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_total",
			Help:      "Callers that joined an in-flight factory instead of starting one.",
		}, []string{"cache"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Callers that gave up waiting because their context ended.",
		}, []string{"cache"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed storage operations.",
		}, []string{"cache", "tier", "op"}),
	}
	for _, c := range []prometheus.Collector{
		m.hits, m.misses, m.factoryCalls, m.factoryErrors,
		m.coalesced, m.cancellations, m.storageErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hit records a lookup served by tier ("l1" or "l2").
func (m *Metrics) Hit(cache, tier string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(cache, tier).Inc()
}

// Miss records a lookup that found nothing.
func (m *Metrics) Miss(cache string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(cache).Inc()
}

// FactoryCall records a started factory.
func (m *Metrics) FactoryCall(cache string) {
	if m == nil {
		return
	}
	m.factoryCalls.WithLabelValues(cache).Inc()
}

// FactoryError records a failed factory.
func (m *Metrics) FactoryError(cache string) {
	if m == nil {
		return
	}
	m.factoryErrors.WithLabelValues(cache).Inc()
}

// Coalesced records a caller that joined an in-flight factory.
func (m *Metrics) Coalesced(cache string) {
	if m == nil {
		return
	}
	m.coalesced.WithLabelValues(cache).Inc()
}

// Cancelled records a caller whose context ended while waiting.
func (m *Metrics) Cancelled(cache string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(cache).Inc()
}

// StorageError records a failed op ("get", "set", "delete") on tier.
func (m *Metrics) StorageError(cache, tier, op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(cache, tier, op).Inc()
}

// Handler returns an http.Handler that serves metrics from the default
// Prometheus gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an http.Handler serving metrics from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
