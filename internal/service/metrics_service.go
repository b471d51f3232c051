package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// Placement outcomes recorded by the optimizer.
const (
	OutcomePlaced     = "placed"
	OutcomeWaitlisted = "waitlisted"
	OutcomeRejected   = "rejected"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	commitDuration  prometheus.Observer
	placements      *prometheus.CounterVec
	races           prometheus.Counter
	conflicts       *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	waitlistDepth   prometheus.Gauge
	balancerMoves   prometheus.Counter
	jobDuration     *prometheus.HistogramVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	placedCount          uint64
	waitlistedCount      uint64
	raceCount            uint64
	conflictCount        uint64
	appliedCount         uint64
	moveCount            uint64
	commitCount          uint64
	commitDurationTotal  uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	commitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "calendar_commit_seconds",
		Help:      "Duration of locked calendar mutations including persistence",
		Buckets:   prometheus.DefBuckets,
	})

	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "placements_total",
		Help:      "Booking requests by placement outcome",
	}, []string{"outcome", "source"})

	races := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "reservation_races_total",
		Help:      "Candidates lost to a concurrent reservation",
	})

	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "conflicts_detected_total",
		Help:      "Conflict records opened by type and severity",
	}, []string{"type", "severity"})

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "resolutions_total",
		Help:      "Resolutions by action and final status",
	}, []string{"action", "status"})

	waitlistDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "waitlist_depth",
		Help:      "Waiting entries after the last sweep",
	})

	balancerMoves := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "balancer_moves_total",
		Help:      "Bookings moved by the workload balancer",
	})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Duration of background jobs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		commitDuration, placements, races, conflicts, resolutions, waitlistDepth, balancerMoves, jobDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		commitDuration:  commitDuration,
		placements:      placements,
		races:           races,
		conflicts:       conflicts,
		resolutions:     resolutions,
		waitlistDepth:   waitlistDepth,
		balancerMoves:   balancerMoves,
		jobDuration:     jobDuration,
	}
}

// Registry exposes the collector registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveCommit records one calendar commit.
func (m *MetricsService) ObserveCommit(duration time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.commitCount, 1)
	atomic.AddUint64(&m.commitDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordPlacement counts a request outcome.
func (m *MetricsService) RecordPlacement(outcome, source string) {
	if m == nil {
		return
	}
	m.placements.WithLabelValues(outcome, source).Inc()
	switch outcome {
	case OutcomePlaced:
		atomic.AddUint64(&m.placedCount, 1)
	case OutcomeWaitlisted:
		atomic.AddUint64(&m.waitlistedCount, 1)
	}
}

// RecordRace counts a candidate lost to a concurrent reservation.
func (m *MetricsService) RecordRace() {
	if m == nil {
		return
	}
	m.races.Inc()
	atomic.AddUint64(&m.raceCount, 1)
}

// RecordConflict counts an opened conflict record.
func (m *MetricsService) RecordConflict(kind models.ConflictType, severity models.Severity) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(string(kind), string(severity)).Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// RecordResolution counts a resolution reaching status.
func (m *MetricsService) RecordResolution(action models.ResolutionAction, status models.ResolutionStatus) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(action), string(status)).Inc()
	if status == models.ResolutionApplied {
		atomic.AddUint64(&m.appliedCount, 1)
	}
}

// SetWaitlistDepth publishes the number of waiting entries.
func (m *MetricsService) SetWaitlistDepth(depth int) {
	if m == nil {
		return
	}
	m.waitlistDepth.Set(float64(depth))
}

// RecordBalancerMoves counts applied balancer moves.
func (m *MetricsService) RecordBalancerMoves(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.balancerMoves.Add(float64(n))
	atomic.AddUint64(&m.moveCount, uint64(n))
}

// ObserveJob records a background job run.
func (m *MetricsService) ObserveJob(job string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobDuration.WithLabelValues(job, result).Observe(duration.Seconds())
}

// Snapshot returns aggregated metrics suitable for the ops endpoint.
func (m *MetricsService) Snapshot() models.EngineMetrics {
	if m == nil {
		return models.EngineMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	commits := atomic.LoadUint64(&m.commitCount)
	commitDuration := atomic.LoadUint64(&m.commitDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var avgCommitMs float64
	if commits > 0 {
		avgCommitMs = float64(commitDuration) / float64(commits) / float64(time.Millisecond)
	}

	return models.EngineMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		Placements:               atomic.LoadUint64(&m.placedCount),
		Waitlisted:               atomic.LoadUint64(&m.waitlistedCount),
		ReservationRaces:         atomic.LoadUint64(&m.raceCount),
		ConflictsDetected:        atomic.LoadUint64(&m.conflictCount),
		ResolutionsApplied:       atomic.LoadUint64(&m.appliedCount),
		BalancerMoves:            atomic.LoadUint64(&m.moveCount),
		CommitCount:              commits,
		AverageCommitDurationMs:  avgCommitMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
