package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scholary/streamscribe/internal/backpressure"
	"github.com/scholary/streamscribe/internal/cache"
	"github.com/scholary/streamscribe/internal/config"
	"github.com/scholary/streamscribe/internal/model"
	"github.com/scholary/streamscribe/internal/objectstore"
	"github.com/scholary/streamscribe/internal/transcribe"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReader struct {
	size int64
}

func (f *fakeReader) Head(ctx context.Context, bucket, key string) (objectstore.Metadata, error) {
	return objectstore.Metadata{ContentLength: f.size}, nil
}

func (f *fakeReader) GetRange(ctx context.Context, bucket, key string, startByte, endByte int64) (io.ReadCloser, error) {
	if endByte >= f.size {
		endByte = f.size - 1
	}
	n := endByte - startByte + 1
	if n < 0 {
		n = 0
	}
	return io.NopCloser(io.LimitReader(zeroReader{}, n)), nil
}

func (f *fakeReader) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "", nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type notFoundReader struct{}

func (notFoundReader) Head(ctx context.Context, bucket, key string) (objectstore.Metadata, error) {
	return objectstore.Metadata{ContentLength: 0}, nil
}
func (notFoundReader) GetRange(ctx context.Context, bucket, key string, startByte, endByte int64) (io.ReadCloser, error) {
	return nil, nil
}
func (notFoundReader) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "", nil
}

type countingClient struct {
	calls int
}

func (c *countingClient) Transcribe(ctx context.Context, localAudioPath string, chunkDurationSeconds float64, chunkIndex int) (transcribe.Response, error) {
	c.calls++
	return transcribe.Response{
		Segments: []transcribe.Segment{{Start: 0, End: chunkDurationSeconds, Text: "chunk words here"}},
		Language: "en",
	}, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ChunkingMode = config.ModeOverlap
	cfg.MaxChunkDurationSeconds = 10
	cfg.OverlapSeconds = 2
	cfg.BytesPerSecond = 1000
	return cfg
}

func TestPipeline_Run_OverlapMode_CompletesAllStates(t *testing.T) {
	cfg := testConfig()
	cfg.TempDir = t.TempDir()

	reader := &fakeReader{size: int64(35 * cfg.BytesPerSecond)}
	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())

	pipe := New(cfg, reader, nil, client, chunkCache, gate, nil, discardLogger())

	resp, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.State != StateCompleted {
		t.Errorf("expected StateCompleted, got %s", resp.State)
	}
	if len(resp.Segments) == 0 {
		t.Error("expected non-empty merged segments")
	}
	if len(resp.Diagnostics) == 0 {
		t.Error("expected per-chunk diagnostics")
	}
	if client.calls != len(resp.Diagnostics) {
		t.Errorf("expected one transcribe call per chunk, got %d calls for %d chunks", client.calls, len(resp.Diagnostics))
	}
}

// S6: a second run over the same object, sharing the same cache, must
// not re-transcribe any chunk.
func TestPipeline_Run_CacheReusedAcrossRuns(t *testing.T) {
	cfg := testConfig()
	cfg.TempDir = t.TempDir()

	reader := &fakeReader{size: int64(35 * cfg.BytesPerSecond)}
	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())

	pipe := New(cfg, reader, nil, client, chunkCache, gate, nil, discardLogger())

	first, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	callsAfterFirst := client.calls

	second, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if client.calls != callsAfterFirst {
		t.Errorf("expected no additional transcribe calls on rerun, went from %d to %d", callsAfterFirst, client.calls)
	}
	for _, d := range second.Diagnostics {
		if !d.FromCache {
			t.Errorf("expected chunk %d to be served from cache on rerun", d.Index)
		}
	}
	if len(second.Segments) != len(first.Segments) {
		t.Errorf("expected identical segment count across runs, got %d vs %d", len(first.Segments), len(second.Segments))
	}

	stats := chunkCache.Stats()
	if stats.Hits == 0 {
		t.Error("expected cache stats to record at least one hit")
	}
}

func TestPipeline_Run_TooLongFileRejected(t *testing.T) {
	cfg := testConfig()
	cfg.TempDir = t.TempDir()
	cfg.MaxFileDurationHours = 0.001 // ~3.6s

	reader := &fakeReader{size: int64(3600 * cfg.BytesPerSecond)} // 3600s of audio
	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())

	pipe := New(cfg, reader, nil, client, chunkCache, gate, nil, discardLogger())

	resp, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "k"})
	if err == nil {
		t.Fatal("expected an error for an over-long file")
	}
	if !Is(err, KindTooLong) {
		t.Errorf("expected KindTooLong, got %v", err)
	}
	if resp.State != StateFailed {
		t.Errorf("expected StateFailed, got %s", resp.State)
	}
}

func TestPipeline_Run_NotFoundObject(t *testing.T) {
	cfg := testConfig()
	cfg.TempDir = t.TempDir()

	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())

	pipe := New(cfg, notFoundReader{}, nil, client, chunkCache, gate, nil, discardLogger())

	_, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "missing"})
	if err == nil {
		t.Fatal("expected an error for a missing object")
	}
	if !Is(err, KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
}

// TestPipeline_Run_HeadNotFound_ClassifiesAsNotFoundNotTransport exercises
// the err != nil branch of the Head call (unlike
// TestPipeline_Run_NotFoundObject, which hits the zero-length check
// instead): a real 404 from the object store must come back as
// KindNotFound, not the generic KindTransport fallback.
func TestPipeline_Run_HeadNotFound_ClassifiesAsNotFoundNotTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.TempDir = t.TempDir()

	reader := objectstore.NewHTTPRangeReader(srv.Client(), func(bucket, key string) string {
		return srv.URL + "/" + bucket + "/" + key
	}, nil, discardLogger())
	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())

	pipe := New(cfg, reader, nil, client, chunkCache, gate, nil, discardLogger())

	_, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "missing"})
	if err == nil {
		t.Fatal("expected an error for a 404 HEAD response")
	}
	if !Is(err, KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
	if Is(err, KindTransport) {
		t.Error("a 404 must not be misclassified as KindTransport")
	}
}

// TestPipeline_Run_ChunkFetchNotFound_ClassifiesAsNotFound covers the
// same misclassification bug one level deeper: a 404 on the ranged GET
// behind executor.Execute must also surface as KindNotFound.
func TestPipeline_Run_ChunkFetchNotFound_ClassifiesAsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "10000")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.TempDir = t.TempDir()

	reader := objectstore.NewHTTPRangeReader(srv.Client(), func(bucket, key string) string {
		return srv.URL + "/" + bucket + "/" + key
	}, nil, discardLogger())
	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())

	pipe := New(cfg, reader, nil, client, chunkCache, gate, nil, discardLogger())

	_, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "k"})
	if err == nil {
		t.Fatal("expected an error for a 404 ranged GET")
	}
	if !Is(err, KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
	if Is(err, KindTransport) {
		t.Error("a 404 must not be misclassified as KindTransport")
	}
}

func TestPipeline_Run_EmptyBucketOrKeyRejected(t *testing.T) {
	cfg := testConfig()
	cfg.TempDir = t.TempDir()

	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())
	pipe := New(cfg, &fakeReader{size: 1000}, nil, client, chunkCache, gate, nil, discardLogger())

	cases := []Request{
		{Bucket: "", Key: "k"},
		{Bucket: "b", Key: ""},
		{Bucket: "", Key: ""},
	}
	for _, req := range cases {
		_, err := pipe.Run(context.Background(), req)
		if err == nil {
			t.Fatalf("expected an error for request %+v", req)
		}
		if !Is(err, KindValidationError) {
			t.Errorf("request %+v: expected KindValidationError, got %v", req, err)
		}
	}
}

func TestPipeline_Run_GeneratesRunIDWhenEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.TempDir = t.TempDir()

	reader := &fakeReader{size: int64(5 * cfg.BytesPerSecond)}
	client := &countingClient{}
	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), "")
	gate := backpressure.New(0.99, 0.995, 0.999, discardLogger())

	pipe := New(cfg, reader, nil, client, chunkCache, gate, nil, discardLogger())

	resp, err := pipe.Run(context.Background(), Request{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.RunID == "" {
		t.Error("expected a generated RunID when the request left it empty")
	}
}

func TestCheckNonDecreasing(t *testing.T) {
	ok := []model.MergedSegment{{Start: 0, End: 1}, {Start: 1, End: 2}, {Start: 1, End: 3}}
	if err := checkNonDecreasing(ok); err != nil {
		t.Errorf("expected nil for non-decreasing sequence, got %v", err)
	}

	bad := []model.MergedSegment{{Start: 2, End: 3}, {Start: 1, End: 4}}
	if err := checkNonDecreasing(bad); err == nil {
		t.Error("expected an error for a regressing timestamp")
	}
}
