// Package executor implements C5: for each planned chunk, check the
// cache, wait on backpressure, stream the padded byte range to a temp
// file, transcribe it, cache the result, and always clean up the temp
// file. Grounded on
// TranscriptionOrchestrator.java#processChunk.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/scholary/streamscribe/internal/ffmpeg"
	"github.com/scholary/streamscribe/internal/model"
	"github.com/scholary/streamscribe/internal/objectstore"
	"github.com/scholary/streamscribe/internal/transcribe"
)

// Cache is the subset of internal/cache.ChunkCache the executor needs.
type Cache interface {
	Get(key model.CacheKey) (model.ChunkTranscript, bool)
	Put(key model.CacheKey, transcript model.ChunkTranscript)
}

// Gate is the subset of internal/backpressure.Gate the executor needs.
type Gate interface {
	WaitIfNeeded(ctx context.Context)
}

type Executor struct {
	reader         objectstore.Reader
	client         transcribe.Client
	cache          Cache
	gate           Gate
	bytesPerSecond float64
	tempDir        string
	log            *slog.Logger
}

func New(reader objectstore.Reader, client transcribe.Client, cache Cache, gate Gate, bytesPerSecond float64, tempDir string, log *slog.Logger) *Executor {
	return &Executor{
		reader: reader, client: client, cache: cache, gate: gate,
		bytesPerSecond: bytesPerSecond, tempDir: tempDir, log: log,
	}
}

// Result carries the produced transcript plus whether it was already
// cached (supplemented diagnostics). ProbedCodec/ProbedDurationMs are
// populated from an ffprobe pass over the chunk's temp file and stay
// zero-valued when probing fails or ffprobe isn't installed; a cache
// hit skips probing entirely since the file was never downloaded.
type Result struct {
	Transcript       model.ChunkTranscript
	FromCache        bool
	Elapsed          time.Duration
	ProbedCodec      string
	ProbedDurationMs int64
}

// Execute runs the steps of §4.5 for one plan.
func (e *Executor) Execute(ctx context.Context, bucket, key string, fileSize int64, plan model.ChunkPlan) (Result, error) {
	started := time.Now()
	cacheKey := model.CacheKey{
		Bucket:       bucket,
		Key:          key,
		ChunkIndex:   plan.Index,
		StartSeconds: plan.StartSeconds,
		EndSeconds:   plan.EndSeconds,
	}

	if cached, ok := e.cache.Get(cacheKey); ok {
		e.log.Info("chunk served from cache", "chunkIndex", plan.Index)
		return Result{Transcript: cached, FromCache: true, Elapsed: time.Since(started)}, nil
	}

	e.gate.WaitIfNeeded(ctx)

	startByte := int64(0)
	if v := plan.StartSeconds*e.bytesPerSecond - e.bytesPerSecond; v > 0 {
		startByte = int64(v)
	}
	endByte := fileSize - 1
	if v := int64(plan.EndSeconds*e.bytesPerSecond + e.bytesPerSecond); v < endByte {
		endByte = v
	}

	tempPath, err := e.streamChunk(ctx, bucket, key, startByte, endByte, plan.Index)
	if err != nil {
		return Result{}, fmt.Errorf("stream chunk %d: %w", plan.Index, err)
	}
	defer func() {
		if rmErr := os.Remove(tempPath); rmErr != nil && !os.IsNotExist(rmErr) {
			e.log.Warn("failed to remove chunk temp file", "path", tempPath, "err", rmErr)
		}
	}()

	var probedCodec string
	var probedDurationMs int64
	if info, probeErr := ffmpeg.ProbeMedia(ctx, tempPath); probeErr != nil {
		stage := "unknown"
		var pe *ffmpeg.ProbeError
		if errors.As(probeErr, &pe) {
			stage = pe.Stage
		}
		e.log.Debug("chunk media probe failed", "chunkIndex", plan.Index, "stage", stage, "err", probeErr)
	} else {
		probedCodec = info.Codec
		probedDurationMs = int64(info.Duration * 1000)
	}

	resp, err := e.client.Transcribe(ctx, tempPath, plan.Duration(), plan.Index)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe chunk %d: %w", plan.Index, err)
	}

	segments := make([]model.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, model.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}

	transcript := model.ChunkTranscript{
		ChunkIndex:  plan.Index,
		StartOffset: plan.StartSeconds,
		Segments:    segments,
		Language:    resp.Language,
	}
	e.cache.Put(cacheKey, transcript)

	return Result{
		Transcript:       transcript,
		FromCache:        false,
		Elapsed:          time.Since(started),
		ProbedCodec:      probedCodec,
		ProbedDurationMs: probedDurationMs,
	}, nil
}

func (e *Executor) streamChunk(ctx context.Context, bucket, key string, startByte, endByte int64, chunkIndex int) (string, error) {
	rc, err := e.reader.GetRange(ctx, bucket, key, startByte, endByte)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	name := fmt.Sprintf("chunk-%d-%s.audio", chunkIndex, uuid.New().String())
	f, err := os.Create(filepath.Join(e.tempDir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
