package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthCheckFunc func(ctx context.Context) error

type StatsFunc func() map[string]interface{}

type HealthCheck struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	LastRun  time.Time     `json:"last_run"`
}

// Monitor owns the Prometheus registry and the registered health checks.
// Each server builds its own, so tests never share global state.
type Monitor struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	startTime time.Time

	mu           sync.RWMutex
	checks       map[string]HealthCheckFunc
	stats        map[string]StatsFunc
	checkTimeout time.Duration
}

func NewMonitor() *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of request durations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		}),
		startTime:    time.Now(),
		checks:       make(map[string]HealthCheckFunc),
		stats:        make(map[string]StatsFunc),
		checkTimeout: 5 * time.Second,
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Register adds extra collectors, such as cache counters, to /metrics.
func (m *Monitor) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterStats adds a named section to the stats block of /health.
func (m *Monitor) RegisterStats(name string, fn StatsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[name] = fn
}

func (m *Monitor) collectStats() map[string]map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(m.stats))
	for name, fn := range m.stats {
		out[name] = fn()
	}
	return out
}

// Middleware records request counts and latencies labelled by route
// template, so /api/todos/:id/ stays one series regardless of id.
func (m *Monitor) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inFlight.Inc()

		c.Next()

		m.inFlight.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"path":   path,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.requests.With(labels).Inc()
		m.duration.With(labels).Observe(time.Since(start).Seconds())
	}
}

func (m *Monitor) MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Monitor) RegisterHealthCheck(name string, check HealthCheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// RunHealthChecks runs every registered check concurrently, each bounded by
// the check timeout.
func (m *Monitor) RunHealthChecks(ctx context.Context) map[string]HealthCheck {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	funcs := make([]HealthCheckFunc, 0, len(m.checks))
	for name, fn := range m.checks {
		names = append(names, name)
		funcs = append(funcs, fn)
	}
	m.mu.RUnlock()

	results := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
			defer cancel()

			start := time.Now()
			check := HealthCheck{Name: names[i], Status: "healthy"}
			if err := funcs[i](checkCtx); err != nil {
				check.Status = "unhealthy"
				check.Message = err.Error()
			}
			check.Duration = time.Since(start)
			check.LastRun = time.Now()
			results[i] = check
		}(i)
	}
	wg.Wait()

	out := make(map[string]HealthCheck, len(results))
	for _, r := range results {
		out[r.Name] = r
	}
	return out
}

func allHealthy(checks map[string]HealthCheck) bool {
	for _, check := range checks {
		if check.Status != "healthy" {
			return false
		}
	}
	return true
}

func (m *Monitor) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := m.RunHealthChecks(c.Request.Context())

		overallStatus := "healthy"
		status := http.StatusOK
		if !allHealthy(checks) {
			overallStatus = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    overallStatus,
			"timestamp": time.Now(),
			"checks":    checks,
			"uptime":    time.Since(m.startTime).String(),
			"system":    m.SystemMetrics(),
			"stats":     m.collectStats(),
		})
	}
}

func (m *Monitor) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := m.RunHealthChecks(c.Request.Context())

		if allHealthy(checks) {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
			return
		}

		failing := make([]string, 0)
		for name, check := range checks {
			if check.Status != "healthy" {
				failing = append(failing, name)
			}
		}
		sort.Strings(failing)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"failing":   failing,
			"timestamp": time.Now(),
		})
	}
}

func (m *Monitor) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    time.Since(m.startTime).String(),
		})
	}
}

type SystemMetrics struct {
	Uptime         string      `json:"uptime"`
	MemoryUsage    MemoryStats `json:"memory"`
	GoroutineCount int         `json:"goroutine_count"`
	CPUCount       int         `json:"cpu_count"`
	GoVersion      string      `json:"go_version"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc_mb"`
	TotalAlloc uint64 `json:"total_alloc_mb"`
	Sys        uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
}

func (m *Monitor) SystemMetrics() SystemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return SystemMetrics{
		Uptime: time.Since(m.startTime).String(),
		MemoryUsage: MemoryStats{
			Alloc:      bToMb(ms.Alloc),
			TotalAlloc: bToMb(ms.TotalAlloc),
			Sys:        bToMb(ms.Sys),
			NumGC:      ms.NumGC,
		},
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
