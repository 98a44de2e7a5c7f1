package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lexsign/custodian/pkg/plans"
	"lexsign/custodian/pkg/records"
)

// CacheMetrics tracks the resolved-plan cache.
//
// Metrics:
//   - custodian_plan_cache_hits_total: cache hits by backend
//   - custodian_plan_cache_misses_total: cache misses by backend
//   - custodian_plan_cache_invalidations_total: explicit invalidations by backend
type CacheMetrics struct {
	hitsTotal          *prometheus.CounterVec
	missesTotal        *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(namespace string, registry prometheus.Registerer) *CacheMetrics {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan_cache",
			Name:      name,
			Help:      help,
		}
	}
	cm := &CacheMetrics{
		hitsTotal:          prometheus.NewCounterVec(opts("hits_total", "Total number of plan cache hits"), []string{"backend"}),
		missesTotal:        prometheus.NewCounterVec(opts("misses_total", "Total number of plan cache misses"), []string{"backend"}),
		invalidationsTotal: prometheus.NewCounterVec(opts("invalidations_total", "Total number of plan cache invalidations"), []string{"backend"}),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal, cm.invalidationsTotal)
	return cm
}

// Instrument wraps cache so that its lookups are counted under backend.
func (cm *CacheMetrics) Instrument(backend string, cache plans.Cache) plans.Cache {
	return &instrumentedCache{next: cache, backend: backend, metrics: cm}
}

type instrumentedCache struct {
	next    plans.Cache
	backend string
	metrics *CacheMetrics
}

func (c *instrumentedCache) Get(ctx context.Context, key string) (*records.ResolvedPlan, bool) {
	plan, ok := c.next.Get(ctx, key)
	if ok {
		c.metrics.hitsTotal.WithLabelValues(c.backend).Inc()
	} else {
		c.metrics.missesTotal.WithLabelValues(c.backend).Inc()
	}
	return plan, ok
}

func (c *instrumentedCache) Set(ctx context.Context, key string, plan *records.ResolvedPlan, ttl time.Duration) {
	c.next.Set(ctx, key, plan, ttl)
}

func (c *instrumentedCache) Delete(ctx context.Context, key string) {
	c.metrics.invalidationsTotal.WithLabelValues(c.backend).Inc()
	c.next.Delete(ctx, key)
}
