package cache

import (
	"testing"
	"time"

	"github.com/scholary/streamscribe/internal/model"
)

func TestChunkCache_RoundTrip(t *testing.T) {
	c := New(10, time.Hour, "")
	defer c.Close()

	key := model.CacheKey{Bucket: "b", Key: "k", ChunkIndex: 0, StartSeconds: 0, EndSeconds: 10}
	want := model.ChunkTranscript{ChunkIndex: 0, StartOffset: 0, Language: "en"}

	c.Put(key, want)
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit after put")
	}
	if got.Language != want.Language {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestChunkCache_MissThenHit(t *testing.T) {
	c := New(10, time.Hour, "")
	defer c.Close()

	key := model.CacheKey{Bucket: "b", Key: "k", ChunkIndex: 1, StartSeconds: 10, EndSeconds: 20}
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss before put")
	}
	c.Put(key, model.ChunkTranscript{ChunkIndex: 1})
	if _, ok := c.Get(key); !ok {
		t.Fatal("expected hit after put")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}
	if stats.HitRatio() != 0.5 {
		t.Errorf("hit ratio = %v, want 0.5", stats.HitRatio())
	}
}

func TestChunkCache_EvictAllForFile(t *testing.T) {
	c := New(10, time.Hour, "")
	defer c.Close()

	for i := 0; i < 3; i++ {
		key := model.CacheKey{Bucket: "b", Key: "k", ChunkIndex: i, StartSeconds: float64(i * 10), EndSeconds: float64(i*10 + 10)}
		c.Put(key, model.ChunkTranscript{ChunkIndex: i})
	}
	other := model.CacheKey{Bucket: "b", Key: "other", ChunkIndex: 0, StartSeconds: 0, EndSeconds: 10}
	c.Put(other, model.ChunkTranscript{ChunkIndex: 0})

	c.EvictAllForFile("b", "k")

	for i := 0; i < 3; i++ {
		key := model.CacheKey{Bucket: "b", Key: "k", ChunkIndex: i, StartSeconds: float64(i * 10), EndSeconds: float64(i*10 + 10)}
		if _, ok := c.Get(key); ok {
			t.Errorf("chunk %d should have been evicted", i)
		}
	}
	if _, ok := c.Get(other); !ok {
		t.Error("other file's chunk should not have been evicted")
	}
}

func TestChunkCache_SweepScheduleStartsAndStops(t *testing.T) {
	c := New(10, time.Hour, "@every 1h")
	if c.sweeper == nil {
		t.Fatal("expected a sweeper to be started for a non-empty schedule")
	}
	entries := c.sweeper.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(entries))
	}
	c.Close()
}

func TestCacheKey_String(t *testing.T) {
	key := model.CacheKey{Bucket: "mybucket", Key: "path/to/file.mp3", ChunkIndex: 3, StartSeconds: 120.5, EndSeconds: 240.25}
	want := "mybucket:path/to/file.mp3:chunk-3:120.50-240.25"
	if got := key.String(); got != want {
		t.Errorf("CacheKey.String() = %q, want %q", got, want)
	}
}
