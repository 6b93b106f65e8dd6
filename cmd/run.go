package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/scholary/streamscribe/internal/backpressure"
	"github.com/scholary/streamscribe/internal/cache"
	"github.com/scholary/streamscribe/internal/config"
	"github.com/scholary/streamscribe/internal/objectstore"
	"github.com/scholary/streamscribe/internal/pipeline"
	"github.com/scholary/streamscribe/internal/silence"
	"github.com/scholary/streamscribe/internal/telemetry"
	"github.com/scholary/streamscribe/internal/transcribe"
)

var runCmd = &cobra.Command{
	Use:   "run <bucket> <key>",
	Short: "Transcribe one object into an absolute-timeline transcript",
	Long: `Runs the full streaming transcription pipeline for one object: estimates
duration from a HEAD call, plans chunk boundaries, fetches and transcribes
each chunk with caching and backpressure, and merges the results.`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

var (
	objectStoreURLTemplate string
	transcribeEndpoint     string
	chunkingMode           string
	maxChunkSeconds        float64
	overlapSeconds         float64
	lookbackSeconds        float64
	concurrentRuns         int
	maxRetries             int
	rateLimitPerMin        int
)

// init registers the flags run and batch both need on rootCmd's
// persistent flag set, so either subcommand can bind them onto a
// config.Config via buildConfig.
func init() {
	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&objectStoreURLTemplate, "object-store-url", "", "URL template for the object store, with %s %s substituted for bucket and key")
	rootCmd.PersistentFlags().StringVar(&transcribeEndpoint, "transcribe-endpoint", "", "transcription service endpoint")
	rootCmd.PersistentFlags().StringVar(&chunkingMode, "chunking-mode", string(defaults.ChunkingMode), "OVERLAP or SILENCE_AWARE")
	rootCmd.PersistentFlags().Float64Var(&maxChunkSeconds, "max-chunk-seconds", defaults.MaxChunkDurationSeconds, "maximum chunk duration in seconds")
	rootCmd.PersistentFlags().Float64Var(&overlapSeconds, "overlap-seconds", defaults.OverlapSeconds, "tail overlap in seconds (overlap mode)")
	rootCmd.PersistentFlags().Float64Var(&lookbackSeconds, "lookback-seconds", defaults.LookbackSeconds, "lookback window searched for silence (silence-aware mode)")
	rootCmd.PersistentFlags().IntVar(&concurrentRuns, "concurrent-runs", defaults.ConcurrentRuns, "max concurrent runs (only takes effect for the batch subcommand)")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", defaults.MaxRetries, "max retries per chunk transcription")
	rootCmd.PersistentFlags().IntVar(&rateLimitPerMin, "rate-limit", defaults.APIRateLimitPerMin, "transcription requests per minute")

	rootCmd.AddCommand(runCmd)
}

// buildConfig assembles a config.Config from the flags shared by run
// and batch, then validates it.
func buildConfig() (config.Config, error) {
	cfg := config.Default()
	cfg.ChunkingMode = config.ChunkingMode(chunkingMode)
	cfg.MaxChunkDurationSeconds = maxChunkSeconds
	cfg.OverlapSeconds = overlapSeconds
	cfg.LookbackSeconds = lookbackSeconds
	cfg.ConcurrentRuns = concurrentRuns
	cfg.MaxRetries = maxRetries
	cfg.APIRateLimitPerMin = rateLimitPerMin

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildPipeline wires every core component behind cfg into one
// *pipeline.Pipeline, the same set of collaborators run and batch both
// need: an object-store reader, transcription client, shared cache and
// backpressure gate, and a metrics bundle registered on a fresh registry.
func buildPipeline(cfg config.Config, log *slog.Logger) (*pipeline.Pipeline, *cache.ChunkCache, error) {
	if objectStoreURLTemplate == "" || transcribeEndpoint == "" {
		return nil, nil, fmt.Errorf("--object-store-url and --transcribe-endpoint are required")
	}
	if err := pipeline.EnsureTempDir(cfg); err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}

	reader := objectstore.NewHTTPRangeReader(http.DefaultClient, func(b, k string) string {
		return fmt.Sprintf(objectStoreURLTemplate, b, k)
	}, nil, log)

	client := transcribe.NewHTTPClient(http.DefaultClient, transcribeEndpoint, cfg.APIRateLimitPerMin, uint64(cfg.MaxRetries), log)

	chunkCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), cfg.Cache.SweepSchedule)

	gate := backpressure.New(cfg.Memory.WarnRatio, cfg.Memory.CriticalRatio, cfg.Memory.PauseRatio, log)

	metrics := telemetry.New(prometheus.NewRegistry())

	probe := silence.New()

	pipe := pipeline.New(cfg, reader, probe, client, chunkCache, gate, metrics, log)
	return pipe, chunkCache, nil
}

func printRun(resp pipeline.Response, started time.Time) {
	slog.Info("run finished",
		"runID", resp.RunID,
		"mode", resp.Mode,
		"segments", len(resp.Segments),
		"chunks", len(resp.Diagnostics),
		"cacheHitRatio", resp.CacheStats.HitRatio(),
		"elapsed", time.Since(started))
	printer(resp)
}

func runRun(cmd *cobra.Command, args []string) error {
	bucket, key := args[0], args[1]

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	log := slog.Default()
	pipe, chunkCache, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer chunkCache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	resp, err := pipe.Run(ctx, pipeline.Request{Bucket: bucket, Key: key})
	if err != nil {
		return err
	}

	if !quiet {
		printRun(resp, started)
	}
	return nil
}

func printer(resp pipeline.Response) {
	for _, s := range resp.Segments {
		fmt.Fprintf(os.Stdout, "[%.2f -> %.2f] %s\n", s.Start, s.End, s.Text)
	}
}
