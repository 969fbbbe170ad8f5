package cache

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsDesc = prometheus.NewDesc(
		"todo_cache_hits_total", "Cache lookups answered from the cache.", []string{"cache"}, nil)
	cacheMissesDesc = prometheus.NewDesc(
		"todo_cache_misses_total", "Cache lookups that fell through to storage.", []string{"cache"}, nil)
	cacheErrorsDesc = prometheus.NewDesc(
		"todo_cache_errors_total", "Cache operations that failed.", []string{"cache"}, nil)
	cacheSetsDesc = prometheus.NewDesc(
		"todo_cache_sets_total", "Values written to the cache.", []string{"cache"}, nil)
	cacheDeletesDesc = prometheus.NewDesc(
		"todo_cache_deletes_total", "Invalidations issued against the cache.", []string{"cache"}, nil)
)

// CacheMetrics counts cache traffic. It implements prometheus.Collector so
// the same counters back both /metrics and the stats block of /health.
type CacheMetrics struct {
	name string

	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64

	startTime atomic.Int64
}

type MetricsSnapshot struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Errors    int64   `json:"errors"`
	Sets      int64   `json:"sets"`
	Deletes   int64   `json:"deletes"`
	HitRate   float64 `json:"hit_rate"`
	StartTime int64   `json:"start_time"`
}

func NewCacheMetrics(name string) *CacheMetrics {
	m := &CacheMetrics{name: name}
	m.startTime.Store(time.Now().Unix())
	return m
}

func (m *CacheMetrics) RecordHit()    { m.hits.Add(1) }
func (m *CacheMetrics) RecordMiss()   { m.misses.Add(1) }
func (m *CacheMetrics) RecordError()  { m.errors.Add(1) }
func (m *CacheMetrics) RecordSet()    { m.sets.Add(1) }
func (m *CacheMetrics) RecordDelete() { m.deletes.Add(1) }

func (m *CacheMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Errors:    m.errors.Load(),
		Sets:      m.sets.Load(),
		Deletes:   m.deletes.Load(),
		HitRate:   m.HitRate(),
		StartTime: m.startTime.Load(),
	}
}

// HitRate is the share of lookups answered from cache, as a percentage.
func (m *CacheMetrics) HitRate() float64 {
	hits := m.hits.Load()
	total := hits + m.misses.Load()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}

func (m *CacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheHitsDesc
	ch <- cacheMissesDesc
	ch <- cacheErrorsDesc
	ch <- cacheSetsDesc
	ch <- cacheDeletesDesc
}

func (m *CacheMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(m.hits.Load()), m.name)
	ch <- prometheus.MustNewConstMetric(cacheMissesDesc, prometheus.CounterValue, float64(m.misses.Load()), m.name)
	ch <- prometheus.MustNewConstMetric(cacheErrorsDesc, prometheus.CounterValue, float64(m.errors.Load()), m.name)
	ch <- prometheus.MustNewConstMetric(cacheSetsDesc, prometheus.CounterValue, float64(m.sets.Load()), m.name)
	ch <- prometheus.MustNewConstMetric(cacheDeletesDesc, prometheus.CounterValue, float64(m.deletes.Load()), m.name)
}
