// Package ffmpeg holds the ffmpeg availability check that internal/silence
// runs before its silencedetect call, and the ffprobe media probe that
// internal/executor runs on each downloaded chunk. Splitting or
// re-encoding the whole file has no place here — this system never
// materializes anything beyond one analysis window or chunk at a time.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// MediaInfo holds duration and codec information from ffprobe.
type MediaInfo struct {
	Duration float64
	Codec    string
}

// Available returns true if ffmpeg is on the PATH; internal/silence calls
// it before invoking ffmpeg. ProbeMedia shells out to ffprobe instead and
// looks that binary up itself, since the two are different binaries with
// independent availability.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// ProbeError wraps a failed ffprobe invocation with the stage it failed
// at, mirroring internal/silence.AnalysisFailedError's shape so callers
// across the two subprocess-wrapping packages can handle probe/analysis
// failures the same way.
type ProbeError struct {
	Path  string
	Stage string
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s failed at %s: %v", e.Path, e.Stage, e.Err)
}
func (e *ProbeError) Unwrap() error { return e.Err }

// ProbeMedia uses ffprobe to get media duration and audio codec for a
// local file (typically one already-downloaded analysis window or chunk,
// never the full remote object). Every failure mode surfaces as a
// *ProbeError so a caller like internal/executor can log the probe
// outcome without inspecting error strings.
func ProbeMedia(ctx context.Context, path string) (*MediaInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, &ProbeError{Path: path, Stage: "lookup", Err: err}
	}

	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name:format=duration",
		"-of", "json",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, &ProbeError{Path: path, Stage: "exec", Err: err}
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, &ProbeError{Path: path, Stage: "parse", Err: err}
	}

	dur, _ := strconv.ParseFloat(probe.Format.Duration, 64)

	codec := "N/A"
	if len(probe.Streams) > 0 && probe.Streams[0].CodecName != "" {
		codec = probe.Streams[0].CodecName
	}

	return &MediaInfo{Duration: dur, Codec: codec}, nil
}
