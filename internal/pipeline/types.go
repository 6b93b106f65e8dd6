package pipeline

import "github.com/scholary/streamscribe/internal/model"

// Request names the object to transcribe. RunID is generated by the
// caller (or the Pipeline, if left empty) and threaded through every log
// line for the duration of the run, mirroring the correlation-id logging
// TranscriptionOrchestrator.java does per transcribe() call.
type Request struct {
	RunID  string
	Bucket string
	Key    string
}

// Response is a completed run's full result: the absolute-time merged
// transcript plus the diagnostics a caller needs to judge the run's
// health without re-deriving it from logs.
type Response struct {
	RunID       string
	Mode        string
	Segments    []model.MergedSegment
	Diagnostics []model.ChunkDiagnostic
	CacheStats  model.CacheStats
	State       State
}
