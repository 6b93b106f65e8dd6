// Package merge implements C8: reconciling adjacent chunk transcripts
// into one absolute-time timeline. OverlapMerger uses longest-common-
// word-run alignment with a timestamp-cutoff fallback (the authoritative
// variant per the source's Open Question (a) — the segment-removal and
// Jaccard-similarity variants are deliberately not reproduced).
// ConcatMerger is the silence-mode alternate: pure offset-and-append.
package merge

import (
	"log/slog"

	"github.com/scholary/streamscribe/internal/model"
)

// OverlapMerger reconciles chunks whose tails and heads share
// overlapSeconds of audio.
type OverlapMerger struct {
	minMatchWords int
	log           *slog.Logger
}

func NewOverlapMerger(minMatchWords int, log *slog.Logger) *OverlapMerger {
	return &OverlapMerger{minMatchWords: minMatchWords, log: log}
}

// Merge walks adjacent (prev, curr) pairs in chunk-index order and
// produces one ordered, absolute-time MergedSegment slice. Each chunk's
// offset is taken from its transcript's StartOffset; plans is not read.
func (m *OverlapMerger) Merge(plans []model.ChunkPlan, transcripts []model.ChunkTranscript) []model.MergedSegment {
	if len(transcripts) == 0 {
		return nil
	}

	var out []model.MergedSegment
	out = append(out, toAbsolute(transcripts[0])...)

	for i := 1; i < len(transcripts); i++ {
		prev, curr := transcripts[i-1], transcripts[i]
		out = append(out, m.mergeBoundary(prev, curr)...)
	}
	return out
}

// mergeBoundary implements §4.8 steps 2-6 for one adjacent pair.
func (m *OverlapMerger) mergeBoundary(prev, curr model.ChunkTranscript) []model.MergedSegment {
	overlapStart := curr.StartOffset - prev.StartOffset

	tail := tailSegments(prev.Segments, overlapStart)
	if len(tail) == 0 {
		return toAbsolute(curr)
	}

	tailWords := tokenizeSegments(tail)
	currWords := tokenizeSegments(curr.Segments)

	match := findLongestMatch(tailWords, currWords, m.minMatchWords)

	var cutoff float64
	if match.hasMatch {
		matchEndWordIndex := match.text2Start + match.length
		cutoff = curr.StartOffset + wordIndexToRelativeEnd(curr.Segments, matchEndWordIndex)
	} else {
		lastEnd := 0.0
		if n := len(prev.Segments); n > 0 {
			lastEnd = prev.Segments[n-1].End
		}
		cutoff = prev.StartOffset + lastEnd
		m.log.Warn("overlap merge found no match above minMatchWords, falling back to timestamp cutoff",
			"prevChunk", prev.ChunkIndex, "currChunk", curr.ChunkIndex, "cutoff", cutoff)
	}

	var out []model.MergedSegment
	for _, seg := range curr.Segments {
		absStart := curr.StartOffset + seg.Start
		if absStart >= cutoff {
			out = append(out, model.MergedSegment{
				Start: absStart,
				End:   curr.StartOffset + seg.End,
				Text:  seg.Text,
			})
		}
	}
	return out
}

// tailSegments returns the segments of prev whose relative start is at
// or after overlapStart (the point where curr's coverage begins).
func tailSegments(segments []model.Segment, overlapStart float64) []model.Segment {
	var tail []model.Segment
	for _, s := range segments {
		if s.Start >= overlapStart {
			tail = append(tail, s)
		}
	}
	return tail
}

func tokenizeSegments(segments []model.Segment) []string {
	var words []string
	for _, s := range segments {
		words = append(words, tokenize(s.Text)...)
	}
	return words
}

// wordIndexToRelativeEnd walks segments accumulating word counts; when
// the running total first reaches targetIndex, it returns that
// segment's relative end time.
func wordIndexToRelativeEnd(segments []model.Segment, targetIndex int) float64 {
	running := 0
	for _, s := range segments {
		running += len(tokenize(s.Text))
		if running >= targetIndex {
			return s.End
		}
	}
	if len(segments) > 0 {
		return segments[len(segments)-1].End
	}
	return 0
}

func toAbsolute(t model.ChunkTranscript) []model.MergedSegment {
	out := make([]model.MergedSegment, 0, len(t.Segments))
	for _, s := range t.Segments {
		out = append(out, model.MergedSegment{
			Start: t.StartOffset + s.Start,
			End:   t.StartOffset + s.End,
			Text:  s.Text,
		})
	}
	return out
}
