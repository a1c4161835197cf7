package metrics

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// API
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
		[]string{"handler", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"handler", "method"},
	)
	Interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "interactions_total", Help: "Inbound interactions by kind."},
		[]string{"kind"}, // ping | command:<name> | modal | component | unknown
	)
	LifecycleResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_lifecycle_total", Help: "Lifecycle operation outcomes."},
		[]string{"op", "result"}, // op: create | list | cancel_list | cancel
	)

	// Dispatcher
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_runs_total", Help: "Dispatcher invocations."},
		[]string{"result"}, // ok | empty | error
	)
	DispatchBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_batch_size",
			Help:    "Due reminders fetched per invocation.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1..~16k
		},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dispatch_inflight", Help: "Reminders being delivered in this process."},
	)
	NotifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_notify_total", Help: "Reminder outcomes."},
		[]string{"outcome"}, // complete | failed | left_pending
	)
	NotifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_notify_duration_seconds",
			Help:    "Direct message send latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms..~40s
		},
	)
	BatchCapHit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_batch_cap_hit_total", Help: "Runs whose due set filled the batch cap.",
	})
	ExpiredPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_expired_pending", Help: "Pending reminders due before the lookback window (capped at batch size).",
	})
)

var registerOnce sync.Once

// MustRegister registers this package's collectors once per process. The Go
// and process collectors are already on the default registry.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, HTTPDuration, Interactions, LifecycleResults,
			DispatchRuns, DispatchBatchSize, InFlight,
			NotifyTotal, NotifyDuration, BatchCapHit, ExpiredPending,
		)
	})
}

// Export a tiny pgxpool stats exporter
type PGXPoolStats struct {
	pool *pgxpool.Pool

	conns          prometheus.Gauge
	idle           prometheus.Gauge
	acquireCount   prometheus.Gauge
	acquireLatency prometheus.Gauge
}

func NewPGXPoolStats(pool *pgxpool.Pool) *PGXPoolStats {
	m := &PGXPoolStats{
		pool: pool,
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_conns", Help: "Total connections in pool.",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_idle_conns", Help: "Idle connections in pool.",
		}),
		acquireCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquires", Help: "Cumulative pool acquires.",
		}),
		acquireLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquire_seconds", Help: "Cumulative acquire latency.",
		}),
	}
	prometheus.MustRegister(m.conns, m.idle, m.acquireCount, m.acquireLatency)

	return m
}

// Start samples pool stats until stop is closed. The pool reports cumulative
// counts, so they are exported as gauges rather than re-added to counters.
func (m *PGXPoolStats) Start(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s := m.pool.Stat()
			m.conns.Set(float64(s.TotalConns()))
			m.idle.Set(float64(s.IdleConns()))
			m.acquireCount.Set(float64(s.AcquireCount()))
			m.acquireLatency.Set(s.AcquireDuration().Seconds())
		}
	}
}
