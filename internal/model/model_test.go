package model

import "testing"

func TestSilenceInterval_DurationAndMidpoint(t *testing.T) {
	s := SilenceInterval{Start: 10, End: 20}
	if d := s.Duration(); d != 10 {
		t.Errorf("Duration() = %v, want 10", d)
	}
	if m := s.Midpoint(); m != 15 {
		t.Errorf("Midpoint() = %v, want 15", m)
	}
}

func TestChunkPlan_Duration(t *testing.T) {
	p := ChunkPlan{StartSeconds: 5, EndSeconds: 35}
	if d := p.Duration(); d != 30 {
		t.Errorf("Duration() = %v, want 30", d)
	}
}

func TestCacheStats_HitRatio(t *testing.T) {
	if r := (CacheStats{}).HitRatio(); r != 0 {
		t.Errorf("HitRatio() with no accesses = %v, want 0", r)
	}
	stats := CacheStats{Hits: 3, Misses: 1}
	if r := stats.HitRatio(); r != 0.75 {
		t.Errorf("HitRatio() = %v, want 0.75", r)
	}
}
