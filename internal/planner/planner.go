// Package planner implements C4: single-pass, streaming selection of
// chunk boundaries. GreedyPlanner cuts at natural pauses discovered by
// streaming successive analysis windows through a SilenceProbe;
// OverlapPlanner cuts at fixed intervals with a trailing overlap.
package planner

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/scholary/streamscribe/internal/model"
	"github.com/scholary/streamscribe/internal/objectstore"
)

// SilenceProbe is the subset of internal/silence.Probe the planner needs,
// kept as a local interface so this package does not import silence
// directly (that would be backwards: silence has no planner dependency,
// but naming it here would still couple the two unnecessarily for tests).
type SilenceProbe interface {
	Analyze(ctx context.Context, path string, noiseThresholdDB, minDurationSec float64) ([]model.SilenceInterval, error)
}

// GreedyPlanner implements StreamingSilenceAnalyzer.findBreakpointsGreedyWithSilence:
// a single forward pass over the remote object, streaming one bounded
// analysis window at a time and cutting at the best silence found in its
// lookback tail, or forcing a cut at the window end.
type GreedyPlanner struct {
	reader         objectstore.Reader
	probe          SilenceProbe
	bytesPerSecond float64
	tempDir        string
	log            *slog.Logger
}

func NewGreedyPlanner(reader objectstore.Reader, probe SilenceProbe, bytesPerSecond float64, tempDir string, log *slog.Logger) *GreedyPlanner {
	return &GreedyPlanner{reader: reader, probe: probe, bytesPerSecond: bytesPerSecond, tempDir: tempDir, log: log}
}

// Params bundles the planner's tunables so PlanChunks's signature stays
// readable.
type Params struct {
	Bucket                string
	Key                   string
	FileSize              int64
	MaxChunkSeconds       float64
	LookbackSeconds       float64
	NoiseThresholdDB      float64
	MinSilenceDurationSec float64
}

// PlanChunks runs the algorithm in §4.4 of the specification verbatim:
// while position < totalDuration, stream the next bounded window,
// analyze it for silence, search only its lookback tail, and either cut
// at the best silence's midpoint or force-cut at the window end.
func (p *GreedyPlanner) PlanChunks(ctx context.Context, params Params) ([]model.ChunkPlan, error) {
	totalDuration := float64(params.FileSize) / p.bytesPerSecond
	if totalDuration <= params.MaxChunkSeconds {
		return []model.ChunkPlan{{Index: 0, StartSeconds: 0, EndSeconds: totalDuration}}, nil
	}

	var breakpoints []model.Breakpoint
	position := 0.0

	for position < totalDuration {
		windowEnd := min(position+params.MaxChunkSeconds, totalDuration)

		startByte := int64(position * p.bytesPerSecond)
		endByte := min(int64(windowEnd*p.bytesPerSecond), params.FileSize-1)

		tempPath, err := p.streamWindow(ctx, params.Bucket, params.Key, startByte, endByte)
		if err != nil {
			return nil, err
		}

		silences, err := p.probe.Analyze(ctx, tempPath, params.NoiseThresholdDB, params.MinSilenceDurationSec)
		removeErr := os.Remove(tempPath)
		if err != nil {
			return nil, err
		}
		if removeErr != nil {
			p.log.Warn("failed to remove planner temp file", "path", tempPath, "err", removeErr)
		}

		remapped := remapToAbsolute(silences, position)

		lookbackStart := max(position, windowEnd-params.LookbackSeconds)
		lookbackEnd := windowEnd
		best, found := bestSilenceInWindow(remapped, lookbackStart, lookbackEnd)

		var bp model.Breakpoint
		if found {
			bp = model.Breakpoint{Position: best.Midpoint(), Silence: &best, HasSilence: true}
			p.log.Debug("planner chose silence breakpoint", "position", bp.Position, "silenceStart", best.Start, "silenceEnd", best.End)
		} else {
			bp = model.Breakpoint{Position: windowEnd, HasSilence: false}
			p.log.Debug("planner forced cut", "position", bp.Position)
		}
		breakpoints = append(breakpoints, bp)

		position = bp.Position
		if position >= totalDuration-1.0 {
			break
		}
	}

	return breakpointsToPlans(breakpoints, totalDuration), nil
}

// streamWindow fetches [startByte, endByte] to a uniquely named temp
// file and returns its path. The caller owns deleting it.
func (p *GreedyPlanner) streamWindow(ctx context.Context, bucket, key string, startByte, endByte int64) (string, error) {
	rc, err := p.reader.GetRange(ctx, bucket, key, startByte, endByte)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.CreateTemp(p.tempDir, "plan-window-*.audio")
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

func remapToAbsolute(intervals []model.SilenceInterval, offset float64) []model.SilenceInterval {
	out := make([]model.SilenceInterval, len(intervals))
	for i, iv := range intervals {
		out[i] = model.SilenceInterval{Start: iv.Start + offset, End: iv.End + offset}
	}
	return out
}

// bestSilenceInWindow picks the silence interval fully contained in
// [windowStart, windowEnd] with the greatest duration; ties broken by
// the earlier start.
func bestSilenceInWindow(intervals []model.SilenceInterval, windowStart, windowEnd float64) (model.SilenceInterval, bool) {
	var best model.SilenceInterval
	found := false
	for _, iv := range intervals {
		if iv.Start < windowStart || iv.End > windowEnd {
			continue
		}
		if !found || iv.Duration() > best.Duration() || (iv.Duration() == best.Duration() && iv.Start < best.Start) {
			best = iv
			found = true
		}
	}
	return best, found
}

// breakpointsToPlans pairs each breakpoint with the previous position,
// appending a final plan up to totalDuration when the last breakpoint
// didn't already reach it.
func breakpointsToPlans(breakpoints []model.Breakpoint, totalDuration float64) []model.ChunkPlan {
	var plans []model.ChunkPlan
	previous := 0.0
	for i, bp := range breakpoints {
		plans = append(plans, model.ChunkPlan{
			Index:        i,
			StartSeconds: previous,
			EndSeconds:   bp.Position,
		})
		previous = bp.Position
	}
	if previous < totalDuration {
		plans = append(plans, model.ChunkPlan{
			Index:        len(plans),
			StartSeconds: previous,
			EndSeconds:   totalDuration,
		})
	}
	return plans
}
