package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ChunkingMode selects the planner/merger pair the pipeline uses.
type ChunkingMode string

const (
	ModeOverlap      ChunkingMode = "OVERLAP"
	ModeSilenceAware ChunkingMode = "SILENCE_AWARE"
)

// CacheSettings bounds the chunk-transcript cache. SweepSchedule is a
// cron expression for an explicit eviction sweep, on top of the LRU
// library's own lazy per-access eviction; empty disables the sweep.
type CacheSettings struct {
	MaxSize       int `validate:"gt=0"`
	TTLHours      int `validate:"gt=0"`
	SweepSchedule string
}

// MemoryBudget holds the resident-heap ratio thresholds the backpressure
// gate pauses on.
type MemoryBudget struct {
	WarnRatio     float64 `validate:"gt=0,lt=1"`
	CriticalRatio float64 `validate:"gt=0,lt=1"`
	PauseRatio    float64 `validate:"gt=0,lt=1"`
}

// Config is the single explicit dependency carrying every recognized
// option from the external-interfaces contract. It is built once by
// Default() and passed by value into constructors; there is no
// process-global config object.
type Config struct {
	ChunkingMode ChunkingMode `validate:"required,oneof=OVERLAP SILENCE_AWARE"`

	MaxChunkDurationSeconds float64 `validate:"gt=0"`
	OverlapSeconds          float64 `validate:"gte=0"`
	LookbackSeconds         float64 `validate:"gte=0"`

	SilenceNoiseThresholdDB float64 `validate:"lt=0"`
	SilenceMinDurationSec   float64 `validate:"gt=0"`

	MinMatchWords int `validate:"gt=0"`

	BytesPerSecond float64 `validate:"gt=0"`

	TempDir string `validate:"required"`

	Cache CacheSettings `validate:"required"`

	ConcurrentRuns int `validate:"gt=0"`

	MaxFileDurationHours float64 `validate:"gt=0"`
	APIRateLimitPerMin   int     `validate:"gt=0"`
	MaxRetries           int     `validate:"gte=0"`

	Memory MemoryBudget
}

// Default returns the recommended configuration, mirroring the values
// named throughout the spec (3600s max chunk, 600s lookback, 16000 B/s).
func Default() Config {
	return Config{
		ChunkingMode:            ModeSilenceAware,
		MaxChunkDurationSeconds: 3600,
		OverlapSeconds:          30,
		LookbackSeconds:         600,
		SilenceNoiseThresholdDB: -30,
		SilenceMinDurationSec:   2.0,
		MinMatchWords:           3,
		BytesPerSecond:          16000,
		TempDir:                 "/tmp/streamscribe",
		Cache: CacheSettings{
			MaxSize:       1000,
			TTLHours:      24,
			SweepSchedule: "@every 1h",
		},
		ConcurrentRuns:       4,
		MaxFileDurationHours: 24,
		APIRateLimitPerMin:   60,
		MaxRetries:           3,
		Memory: MemoryBudget{
			WarnRatio:     0.75,
			CriticalRatio: 0.85,
			PauseRatio:    0.90,
		},
	}
}

var validate = validator.New()

// Validate enforces the structural preconditions behind the
// ValidationError kind and returns a plain error describing the first
// violation; callers wrap it into pipeline.Error{Kind: ValidationError}
// at the boundary.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.OverlapSeconds >= c.MaxChunkDurationSeconds {
		return fmt.Errorf("invalid config: overlapSeconds (%v) must be less than maxChunkDurationSeconds (%v)", c.OverlapSeconds, c.MaxChunkDurationSeconds)
	}
	if c.Memory.WarnRatio >= c.Memory.CriticalRatio || c.Memory.CriticalRatio >= c.Memory.PauseRatio {
		return fmt.Errorf("invalid config: memory thresholds must satisfy warn < critical < pause")
	}
	return nil
}

// CacheTTL returns the configured cache TTL as a time.Duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
