package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholary/streamscribe/internal/pipeline"
	"github.com/scholary/streamscribe/internal/runner"
)

var batchCmd = &cobra.Command{
	Use:   "batch <bucket:key>...",
	Short: "Transcribe several objects concurrently, bounded by --concurrent-runs",
	Long: `Runs the full pipeline for each bucket:key pair, up to --concurrent-runs
runs in flight at a time. One run failing does not cancel the others; each
object's outcome is reported independently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	requests := make([]pipeline.Request, 0, len(args))
	for _, arg := range args {
		bucket, key, ok := strings.Cut(arg, ":")
		if !ok {
			return fmt.Errorf("invalid bucket:key pair %q", arg)
		}
		requests = append(requests, pipeline.Request{Bucket: bucket, Key: key})
	}

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

	mgr := runner.New(pipe, cfg.ConcurrentRuns, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	results := mgr.SubmitAll(ctx, requests)

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			slog.Error("object failed", "bucket", result.Request.Bucket, "key", result.Request.Key, "error", result.Err)
			continue
		}
		if !quiet {
			printRun(result.Response, started)
		}
	}

	slog.Info("batch finished", "total", len(results), "failed", failed, "elapsed", time.Since(started))
	if failed > 0 {
		return fmt.Errorf("%d of %d objects failed", failed, len(results))
	}
	return nil
}
