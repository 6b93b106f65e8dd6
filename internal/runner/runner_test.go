package runner

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/scholary/streamscribe/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePipeline struct {
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	failKeys  map[string]bool
	runCalls  atomic.Int32
}

func (f *fakePipeline) Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	f.runCalls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}

	if f.failKeys[req.Key] {
		return pipeline.Response{RunID: req.RunID, State: pipeline.StateFailed}, pipeline.NewError(pipeline.KindTransport, "injected failure", nil)
	}
	return pipeline.Response{RunID: req.RunID, State: pipeline.StateCompleted}, nil
}

func TestManager_SubmitAll_RespectsConcurrencyLimit(t *testing.T) {
	fp := &fakePipeline{failKeys: map[string]bool{}}
	m := New(fp, 2, discardLogger())

	var requests []pipeline.Request
	for i := 0; i < 10; i++ {
		requests = append(requests, pipeline.Request{Key: "k"})
	}

	results := m.SubmitAll(context.Background(), requests)
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	if fp.maxSeen.Load() > 2 {
		t.Errorf("concurrency limit violated: observed %d runs in flight at once", fp.maxSeen.Load())
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected error: %v", r.Err)
		}
	}
}

func TestManager_SubmitAll_OneFailureDoesNotCancelOthers(t *testing.T) {
	fp := &fakePipeline{failKeys: map[string]bool{"bad": true}}
	m := New(fp, 4, discardLogger())

	requests := []pipeline.Request{
		{Key: "good-1"},
		{Key: "bad"},
		{Key: "good-2"},
	}
	results := m.SubmitAll(context.Background(), requests)

	if results[1].Err == nil {
		t.Error("expected the 'bad' request to report an error")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("expected the other requests to succeed despite one failure")
	}
	if fp.runCalls.Load() != 3 {
		t.Errorf("expected all 3 runs to be attempted, got %d", fp.runCalls.Load())
	}
}

func TestManager_Submit_Single(t *testing.T) {
	fp := &fakePipeline{failKeys: map[string]bool{}}
	m := New(fp, 1, discardLogger())

	resp, err := m.Submit(context.Background(), pipeline.Request{Key: "solo"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.State != pipeline.StateCompleted {
		t.Errorf("expected StateCompleted, got %s", resp.State)
	}
}
