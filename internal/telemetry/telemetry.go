// Package telemetry holds the process's internal prometheus metrics:
// counters and histograms the core increments as it runs. No HTTP
// scrape endpoint is wired here — exposing /metrics is the out-of-scope
// "telemetry endpoint" collaborator; this package only instruments.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/histogram the core touches. Every
// method has a nil-receiver no-op, so callers that don't want metrics
// can simply pass a nil *Metrics instead of a disabled implementation.
type Metrics struct {
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	BackpressureWaits  prometheus.Counter
	ChunkDuration      prometheus.Histogram
	ChunksProcessed    *prometheus.CounterVec
	RunsCompleted      prometheus.Counter
	RunsFailed         *prometheus.CounterVec
}

// New registers every metric on reg and returns the bundle. Callers
// typically pass prometheus.NewRegistry() to keep these metrics out of
// the default global registry unless they explicitly want them there.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_cache_hits_total",
			Help: "Chunk cache hits across all runs.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_cache_misses_total",
			Help: "Chunk cache misses across all runs.",
		}),
		BackpressureWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_backpressure_waits_total",
			Help: "Number of times the backpressure gate paused chunk fetching.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamscribe_chunk_duration_seconds",
			Help:    "Wall-clock time to execute one chunk (fetch + transcribe).",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ChunksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamscribe_chunks_processed_total",
			Help: "Chunks processed, labeled by whether they were served from cache.",
		}, []string{"source"}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_runs_completed_total",
			Help: "Runs that reached the COMPLETED state.",
		}),
		RunsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamscribe_runs_failed_total",
			Help: "Runs that reached the FAILED state, labeled by error kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.BackpressureWaits, m.ChunkDuration,
		m.ChunksProcessed, m.RunsCompleted, m.RunsFailed,
	)
	return m
}

// ObserveChunk records one chunk's completion. A nil receiver is a
// no-op, so callers can pass an unconfigured *Metrics without branching.
func (m *Metrics) ObserveChunk(fromCache bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChunkDuration.Observe(durationSeconds)
	if fromCache {
		m.CacheHits.Inc()
		m.ChunksProcessed.WithLabelValues("cache").Inc()
	} else {
		m.CacheMisses.Inc()
		m.ChunksProcessed.WithLabelValues("fetched").Inc()
	}
}

// IncBackpressureWait records one pause cycle triggered by the gate. A
// nil receiver is a no-op.
func (m *Metrics) IncBackpressureWait() {
	if m == nil {
		return
	}
	m.BackpressureWaits.Inc()
}

// ObserveRun records one run's terminal outcome. A nil receiver is a
// no-op.
func (m *Metrics) ObserveRun(kind string, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.RunsFailed.WithLabelValues(kind).Inc()
		return
	}
	m.RunsCompleted.Inc()
}
