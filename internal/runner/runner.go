// Package runner bounds how many transcription runs execute at once.
// Within a run, chunk execution stays sequential by index (internal to
// internal/pipeline); across runs, concurrency is bounded by
// concurrentRuns via an errgroup limit, the same pattern the teacher
// repo used for per-chunk concurrency in worker/concurrent.go, lifted
// one level to per-run.
package runner

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/scholary/streamscribe/internal/pipeline"
)

// Pipeline is the subset of pipeline.Pipeline the manager needs.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// Manager runs batches of requests with a bounded number in flight. The
// bound is applied within one SubmitAll (or Submit) call; separate calls
// made concurrently are not bounded against each other.
type Manager struct {
	pipe  Pipeline
	limit int
	log   *slog.Logger
}

func New(pipe Pipeline, concurrentRuns int, log *slog.Logger) *Manager {
	return &Manager{pipe: pipe, limit: concurrentRuns, log: log}
}

// Result pairs a submitted request with its outcome, since SubmitAll
// runs everything concurrently and the caller needs to know which
// response belongs to which request.
type Result struct {
	Request  pipeline.Request
	Response pipeline.Response
	Err      error
}

// SubmitAll runs every request, at most m.limit at a time, and waits
// for all of them to finish. A failing run does not cancel the others;
// each failure is reported in its own Result.
func (m *Manager) SubmitAll(ctx context.Context, requests []pipeline.Request) []Result {
	results := make([]Result, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			m.log.Info("run submitted", "runID", req.RunID, "bucket", req.Bucket, "key", req.Key)
			resp, err := m.pipe.Run(gctx, req)
			results[i] = Result{Request: req, Response: resp, Err: err}
			if err != nil {
				m.log.Error("run failed", "runID", req.RunID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() // individual failures are carried in results, never aborting the group

	return results
}

// Submit runs a single request as a one-element SubmitAll and blocks
// until the run completes. It does not wait on runs started by other
// Submit or SubmitAll calls.
func (m *Manager) Submit(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	results := m.SubmitAll(ctx, []pipeline.Request{req})
	return results[0].Response, results[0].Err
}
