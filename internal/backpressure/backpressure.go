// Package backpressure implements C7: pausing new chunk fetches while
// resident memory is near the process's limit. Grounded on
// streaming/BackpressureController.java — same thresholds, same bounded
// wait loop.
package backpressure

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/scholary/streamscribe/internal/telemetry"
)

const (
	maxWaitIterations = 30
	pollInterval      = 1 * time.Second
)

// Gate reads the resident-heap ratio against warn/critical/pause
// thresholds. It is not a hard guarantee: it only delays the next
// chunk's fetch, and transcripts already in flight are never preempted.
type Gate struct {
	warnRatio     float64
	criticalRatio float64
	pauseRatio    float64
	log           *slog.Logger
	metrics       *telemetry.Metrics
}

func New(warnRatio, criticalRatio, pauseRatio float64, log *slog.Logger) *Gate {
	return &Gate{warnRatio: warnRatio, criticalRatio: criticalRatio, pauseRatio: pauseRatio, log: log}
}

// WithMetrics attaches a metrics sink so WaitIfNeeded can record how
// often the gate actually paused work, beyond what it logs.
func (g *Gate) WithMetrics(metrics *telemetry.Metrics) *Gate {
	g.metrics = metrics
	return g
}

// MemoryUsageRatio returns used/max heap, mirroring
// getMemoryUsageRatio = (totalMemory - freeMemory) / maxMemory.
func MemoryUsageRatio() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	maxMemory := debug.SetMemoryLimit(-1)
	if maxMemory <= 0 || maxMemory == math.MaxInt64 {
		// No explicit GOMEMLIMIT: fall back to comparing live heap against
		// the heap's own high-water mark, which still rises monotonically
		// toward real pressure even without a configured ceiling.
		if stats.HeapSys == 0 {
			return 0
		}
		return float64(stats.HeapAlloc) / float64(stats.HeapSys)
	}
	return float64(stats.HeapAlloc) / float64(maxMemory)
}

// ShouldPause returns true iff the ratio is at or above pauseRatio. Between
// critical and pause it issues a best-effort GC hint (§9(c)) and logs at
// warn.
func (g *Gate) ShouldPause() bool {
	ratio := MemoryUsageRatio()

	switch {
	case ratio >= g.pauseRatio:
		return true
	case ratio >= g.criticalRatio:
		g.log.Warn("memory usage critical, issuing GC hint", "ratio", ratio)
		runtime.GC()
	case ratio >= g.warnRatio:
		g.log.Warn("memory usage elevated", "ratio", ratio)
	}
	return false
}

// WaitIfNeeded blocks in 1s increments while ShouldPause is true, up to
// maxWaitIterations, then proceeds regardless (logged). It returns early
// if ctx is cancelled.
func (g *Gate) WaitIfNeeded(ctx context.Context) {
	for attempt := 0; attempt < maxWaitIterations; attempt++ {
		if !g.ShouldPause() {
			return
		}
		if attempt == 0 {
			g.metrics.IncBackpressureWait()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
	g.log.Error("backpressure wait exhausted without memory clearing, proceeding anyway",
		"iterations", maxWaitIterations)
}
