// SPDX-License-Identifier: MIT

package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheSnapshot is the subset of cache statistics exported to Prometheus.
type CacheSnapshot struct {
	Backend     string
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

var (
	cacheOpsDesc = prometheus.NewDesc(
		"minios_cache_operations_total",
		"Cache operations by backend and result",
		[]string{"backend", "result"}, nil)
	cacheSizeDesc = prometheus.NewDesc(
		"minios_cache_entries",
		"Entries currently held by the cache",
		[]string{"backend"}, nil)
)

// CacheCollector reads cache statistics at scrape time.
type CacheCollector struct {
	stats func() CacheSnapshot
}

// NewCacheCollector returns a collector calling stats on every scrape.
func NewCacheCollector(stats func() CacheSnapshot) *CacheCollector {
	return &CacheCollector{stats: stats}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheOpsDesc
	ch <- cacheSizeDesc
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Hits), s.Backend, "hit")
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Misses), s.Backend, "miss")
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Sets), s.Backend, "set")
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Evictions), s.Backend, "eviction")
	ch <- prometheus.MustNewConstMetric(cacheSizeDesc, prometheus.GaugeValue, float64(s.CurrentSize), s.Backend)
}

// RegisterCacheCollector registers c, replacing nothing if an equal
// collector is already present (engine restarts re-register).
func RegisterCacheCollector(reg prometheus.Registerer, c *CacheCollector) (func(), error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			reg.Unregister(are.ExistingCollector)
			if err := reg.Register(c); err != nil {
				return func() {}, err
			}
		} else {
			return func() {}, err
		}
	}
	return func() { reg.Unregister(c) }, nil
}
