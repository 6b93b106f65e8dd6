package merge

import (
	"log/slog"

	"github.com/scholary/streamscribe/internal/model"
)

// ConcatMerger is the silence-mode alternate merger: each chunk's
// segments are offset by its startOffset and appended in chunk-index
// order, with no word-alignment step. Grounded on
// ConcatenationMerger.java#mergeByConcat / validateNoOverlaps — a
// detected backwards timestamp at a boundary is logged as an anomaly,
// not treated as a merge failure.
type ConcatMerger struct {
	log *slog.Logger
}

func NewConcatMerger(log *slog.Logger) *ConcatMerger {
	return &ConcatMerger{log: log}
}

func (m *ConcatMerger) Merge(transcripts []model.ChunkTranscript) []model.MergedSegment {
	var out []model.MergedSegment
	var previousEnd float64
	havePrevious := false

	for _, t := range transcripts {
		for _, s := range t.Segments {
			absStart := t.StartOffset + s.Start
			absEnd := t.StartOffset + s.End
			if havePrevious && absStart < previousEnd {
				m.log.Warn("concatenation merge detected overlap anomaly at chunk boundary",
					"chunkIndex", t.ChunkIndex, "segmentStart", absStart, "previousEnd", previousEnd)
			}
			out = append(out, model.MergedSegment{Start: absStart, End: absEnd, Text: s.Text})
			previousEnd = absEnd
			havePrevious = true
		}
	}
	return out
}
