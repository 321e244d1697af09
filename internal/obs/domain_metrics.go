package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BundleResolveTotal counts bundle resolutions by strategy and outcome.
	BundleResolveTotal *prometheus.CounterVec
	// BundleCacheTotal counts definition/inventory/price cache lookups.
	BundleCacheTotal *prometheus.CounterVec
	// BundleCartMutationTotal counts cart mutations by kind and outcome.
	BundleCartMutationTotal *prometheus.CounterVec
	// UpstreamLatency records storefront and hosted backend call latency in milliseconds.
	UpstreamLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BundleResolveTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_resolve_total",
			Help:      "Count of bundle resolutions by source and result.",
		}, []string{"source", "result"}))
		BundleCacheTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_cache_total",
			Help:      "Count of bundle cache lookups by cache and result.",
		}, []string{"cache", "result"}))
		BundleCartMutationTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_cart_mutation_total",
			Help:      "Count of bundle cart mutations by mutation and result.",
		}, []string{"mutation", "result"}))
		UpstreamLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bundle_upstream_duration_ms",
			Help:      "Latency for upstream bundle calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"target", "operation"}))
	})
}

// ObserveResolve is a no-op until MustRegisterDomainMetrics has run.
func ObserveResolve(source, result string) {
	if BundleResolveTotal != nil {
		BundleResolveTotal.WithLabelValues(source, result).Inc()
	}
}

// ObserveCache records a cache hit or miss.
func ObserveCache(cache string, hit bool) {
	if BundleCacheTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	BundleCacheTotal.WithLabelValues(cache, result).Inc()
}

func ObserveCartMutation(mutation, result string) {
	if BundleCartMutationTotal != nil {
		BundleCartMutationTotal.WithLabelValues(mutation, result).Inc()
	}
}

// ObserveUpstream records the elapsed time since start.
func ObserveUpstream(target, operation string, start time.Time) {
	if UpstreamLatency != nil {
		UpstreamLatency.WithLabelValues(target, operation).Observe(float64(time.Since(start).Milliseconds()))
	}
}
