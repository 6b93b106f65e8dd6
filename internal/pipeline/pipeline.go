// Package pipeline implements C9: the run-level state machine that
// wires the silence probe, planner, executor, cache, backpressure gate
// and merger into one transcription run. Grounded on
// TranscriptionOrchestrator.java#transcribe, which drives the same
// phases this package names as State values.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/scholary/streamscribe/internal/backpressure"
	"github.com/scholary/streamscribe/internal/cache"
	"github.com/scholary/streamscribe/internal/config"
	"github.com/scholary/streamscribe/internal/executor"
	"github.com/scholary/streamscribe/internal/merge"
	"github.com/scholary/streamscribe/internal/model"
	"github.com/scholary/streamscribe/internal/objectstore"
	"github.com/scholary/streamscribe/internal/planner"
	"github.com/scholary/streamscribe/internal/telemetry"
	"github.com/scholary/streamscribe/internal/transcribe"
)

// State is one point in the run lifecycle. Every run moves strictly
// forward through these until COMPLETED, or jumps to FAILED from any
// state.
type State string

const (
	StatePending    State = "PENDING"
	StateRunning    State = "RUNNING"
	StateEstimating State = "ESTIMATING"
	StatePlanning   State = "PLANNING"
	StateProcessing State = "PROCESSING"
	StateMerging    State = "MERGING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Pipeline runs one transcription at a time end to end. It holds no
// per-run state itself; Run is safe to call concurrently (the caller's
// internal/runner bounds how many run at once).
type Pipeline struct {
	reader objectstore.Reader
	exec   *executor.Executor
	cache  *cache.ChunkCache

	greedy  *planner.GreedyPlanner
	overlap *planner.OverlapPlanner

	overlapMerger *merge.OverlapMerger
	concatMerger  *merge.ConcatMerger

	metrics *telemetry.Metrics

	cfg config.Config
	log *slog.Logger
}

// New wires every core component from cfg. reader is the object store,
// probe the silence analyser, client the transcription service, and
// chunkCache/gate the process-wide shared cache and backpressure gate
// (§5: the cache is the one piece of state every run shares). metrics
// may be nil; every telemetry call is then a no-op.
func New(cfg config.Config, reader objectstore.Reader, probe planner.SilenceProbe, client transcribe.Client, chunkCache *cache.ChunkCache, gate *backpressure.Gate, metrics *telemetry.Metrics, log *slog.Logger) *Pipeline {
	gate = gate.WithMetrics(metrics)
	exec := executor.New(reader, client, chunkCache, gate, cfg.BytesPerSecond, cfg.TempDir, log)
	greedy := planner.NewGreedyPlanner(reader, probe, cfg.BytesPerSecond, cfg.TempDir, log)
	overlap := planner.NewOverlapPlanner(cfg.MaxChunkDurationSeconds, cfg.OverlapSeconds)

	return &Pipeline{
		reader:        reader,
		exec:          exec,
		cache:         chunkCache,
		greedy:        greedy,
		overlap:       overlap,
		overlapMerger: merge.NewOverlapMerger(cfg.MinMatchWords, log),
		concatMerger:  merge.NewConcatMerger(log),
		metrics:       metrics,
		cfg:           cfg,
		log:           log,
	}
}

// Run drives one transcription through every state named in §4.9,
// returning a *pipeline.Error tagged with the failing phase's natural
// Kind on any failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	log := p.log.With("runID", runID, "bucket", req.Bucket, "key", req.Key)

	state := StatePending
	if req.Bucket == "" || req.Key == "" {
		return p.fail(runID, state, log, NewError(KindValidationError, "bucket and key are required", nil))
	}

	state = StateRunning
	log.Info("run started", "state", state)

	state = StateEstimating
	log.Info("run state transition", "state", state)
	meta, err := p.reader.Head(ctx, req.Bucket, req.Key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			return p.fail(runID, state, log, NewError(KindNotFound, "object not found", err))
		}
		return p.fail(runID, state, log, NewError(KindTransport, "head failed", err))
	}
	if meta.ContentLength <= 0 {
		return p.fail(runID, state, log, NewError(KindNotFound, "object reports zero length", nil))
	}

	totalDuration := float64(meta.ContentLength) / p.cfg.BytesPerSecond
	maxDuration := p.cfg.MaxFileDurationHours * 3600
	if totalDuration > maxDuration {
		return p.fail(runID, state, log, NewError(KindTooLong, fmt.Sprintf("file duration %.0fs exceeds limit %.0fs", totalDuration, maxDuration), nil))
	}

	state = StatePlanning
	log.Info("run state transition", "state", state)
	plans, err := p.plan(ctx, req, meta, totalDuration)
	if err != nil {
		return p.fail(runID, state, log, err)
	}
	log.Info("planning complete", "chunks", len(plans))

	state = StateProcessing
	log.Info("run state transition", "state", state)
	transcripts := make([]model.ChunkTranscript, 0, len(plans))
	diagnostics := make([]model.ChunkDiagnostic, 0, len(plans))
	cachedCount := 0

	for _, plan := range plans {
		select {
		case <-ctx.Done():
			return p.fail(runID, state, log, NewError(KindCancelled, "run cancelled during processing", ctx.Err()))
		default:
		}

		result, err := p.exec.Execute(ctx, req.Bucket, req.Key, meta.ContentLength, plan)
		if err != nil {
			if objectstore.IsNotFound(err) {
				return p.fail(runID, state, log, NewChunkError(KindNotFound, plan.Index, "object not found", err))
			}
			return p.fail(runID, state, log, NewChunkError(KindTransport, plan.Index, "chunk execution failed", err))
		}
		transcripts = append(transcripts, result.Transcript)
		if result.FromCache {
			cachedCount++
		}
		diagnostics = append(diagnostics, model.ChunkDiagnostic{
			Index:            plan.Index,
			SegmentCount:     len(result.Transcript.Segments),
			FromCache:        result.FromCache,
			DurationMs:       result.Elapsed.Milliseconds(),
			ProbedCodec:      result.ProbedCodec,
			ProbedDurationMs: result.ProbedDurationMs,
		})
		p.metrics.ObserveChunk(result.FromCache, result.Elapsed.Seconds())
		log.Info("chunk complete", "chunkIndex", plan.Index, "fromCache", result.FromCache, "segments", len(result.Transcript.Segments))
	}
	log.Info("processing complete", "chunks", len(plans), "cachedCount", cachedCount)

	state = StateMerging
	log.Info("run state transition", "state", state)
	var merged []model.MergedSegment
	if p.cfg.ChunkingMode == config.ModeOverlap {
		merged = p.overlapMerger.Merge(plans, transcripts)
	} else {
		merged = p.concatMerger.Merge(transcripts)
	}
	if err := checkNonDecreasing(merged); err != nil {
		return p.fail(runID, state, log, NewError(KindInternalInvariant, "merged segments are not time-ordered", err))
	}

	state = StateCompleted
	log.Info("run completed", "state", state, "segments", len(merged))
	p.metrics.ObserveRun("", false)

	return Response{
		RunID:       runID,
		Mode:        string(p.cfg.ChunkingMode),
		Segments:    merged,
		Diagnostics: diagnostics,
		CacheStats:  p.cache.Stats(),
		State:       state,
	}, nil
}

// plan dispatches to the configured chunking strategy. The greedy
// silence-aware planner streams bounded analysis windows through a
// temp file it owns for its own lifetime; the overlap planner is pure
// arithmetic over totalDuration and needs no I/O.
func (p *Pipeline) plan(ctx context.Context, req Request, meta objectstore.Metadata, totalDuration float64) ([]model.ChunkPlan, error) {
	if p.cfg.ChunkingMode == config.ModeOverlap {
		return p.overlap.PlanChunks(totalDuration), nil
	}

	params := planner.Params{
		Bucket:                req.Bucket,
		Key:                   req.Key,
		FileSize:              meta.ContentLength,
		MaxChunkSeconds:       p.cfg.MaxChunkDurationSeconds,
		LookbackSeconds:       p.cfg.LookbackSeconds,
		NoiseThresholdDB:      p.cfg.SilenceNoiseThresholdDB,
		MinSilenceDurationSec: p.cfg.SilenceMinDurationSec,
	}
	plans, err := p.greedy.PlanChunks(ctx, params)
	if err != nil {
		return nil, NewError(KindAnalysisFailed, "silence-aware planning failed", err)
	}
	return plans, nil
}

// checkNonDecreasing enforces the non-decreasing-start property §3 states
// for MergedSegment (and §8 lists for all merged outputs): a merger bug
// that lets timestamps regress must surface as
// InternalInvariant, not silently ship a malformed transcript. Per-boundary
// regressions in concat mode are a logged anomaly (internal/merge), not
// this check; this only fires on the merged whole.
func checkNonDecreasing(segments []model.MergedSegment) error {
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].Start {
			return fmt.Errorf("segment %d starts at %.3f, before segment %d at %.3f", i, segments[i].Start, i-1, segments[i-1].Start)
		}
	}
	return nil
}

func (p *Pipeline) fail(runID string, state State, log *slog.Logger, err error) (Response, error) {
	log.Error("run failed", "state", state, "error", err)
	kind := ""
	var pe *Error
	if errors.As(err, &pe) {
		kind = string(pe.Kind)
	}
	p.metrics.ObserveRun(kind, true)
	return Response{RunID: runID, State: StateFailed}, err
}

// EnsureTempDir creates the configured temp directory if it does not
// already exist; callers invoke this once at process startup rather
// than on every run.
func EnsureTempDir(cfg config.Config) error {
	return os.MkdirAll(cfg.TempDir, 0o755)
}
