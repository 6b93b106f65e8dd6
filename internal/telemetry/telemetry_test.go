package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersAndIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveChunk(true, 1.5)
	m.ObserveChunk(false, 2.0)
	m.IncBackpressureWait()
	m.ObserveRun("", false)
	m.ObserveRun("Transport", true)

	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("CacheHits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses); got != 1 {
		t.Errorf("CacheMisses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BackpressureWaits); got != 1 {
		t.Errorf("BackpressureWaits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RunsCompleted); got != 1 {
		t.Errorf("RunsCompleted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RunsFailed.WithLabelValues("Transport")); got != 1 {
		t.Errorf("RunsFailed[Transport] = %v, want 1", got)
	}
}

func TestNilMetrics_AllMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveChunk(true, 1.0)
	m.IncBackpressureWait()
	m.ObserveRun("kind", true)
}
