package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blobtailer/blobtailer/internal/logger"
	"github.com/blobtailer/blobtailer/internal/telemetry"
	"github.com/blobtailer/blobtailer/pkg/config"
	"github.com/blobtailer/blobtailer/pkg/metrics"
	"github.com/blobtailer/blobtailer/pkg/objectstore/azure"
	"github.com/blobtailer/blobtailer/pkg/poller"
	"github.com/blobtailer/blobtailer/pkg/stream"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the configured container and stream new blobs until stopped",
	Long: `run loads the configuration, opens the Azure Blob Storage client,
builds the selected state tracker, and repeatedly executes poll cycles
until it receives SIGINT or SIGTERM.

Each cycle claims new blobs, streams their lines to the configured sink,
and marks them completed or failed. Between cycles it sleeps for
poll.interval. On shutdown it stops claiming new work and waits up to
shutdown_timeout for in-flight blobs to finish.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Enabled = cfg.Telemetry.Enabled
	telemetryCfg.Endpoint = cfg.Telemetry.Endpoint
	telemetryCfg.Insecure = cfg.Telemetry.Insecure
	telemetryCfg.SampleRate = cfg.Telemetry.SampleRate
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	store, err := azure.NewClient(azure.Config{
		AuthMethod:       azure.AuthMethod(cfg.Azure.AuthMethod),
		AccountName:      cfg.Azure.AccountName,
		AccountKey:       cfg.Azure.AccountKey,
		ConnectionString: cfg.Azure.ConnectionString,
		ServiceURL:       cfg.Azure.ServiceURL,
	})
	if err != nil {
		return fmt.Errorf("create azure client: %w", err)
	}

	track, err := config.NewTracker(cfg.Tracking, cfg.Lease, cfg.Processor, store)
	if err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		track.Close(closeCtx)
	}()

	streamer := stream.New(stream.Config{
		SkipEmptyLines: cfg.Stream.SkipEmptyLines,
		MaxLineLength:  cfg.Stream.MaxLineLength,
	})

	sink := loggingSink()

	container := containerFromTracking(cfg.Tracking)
	orch := poller.New(store, track, streamer, sink, poller.Config{
		Container:   container,
		Prefixes:    cfg.Poll.Prefixes,
		BatchSize:   cfg.Poll.BatchSize,
		Concurrency: cfg.Poll.Concurrency,
		Processor:   cfg.Processor,
		Strategy:    cfg.Tracking.Strategy,
	})

	var recorder *metrics.Recorder
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		metricsServer = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), recorder, orch.Healthy)
		metricsServer.Start()
		logger.Info("metrics server listening", "port", cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown error", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runLoop(ctx, orch, recorder, cfg.Poll.Interval)
	}()

	logger.Info("blobtailer is running", "container", container, "interval", cfg.Poll.Interval)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, draining in-flight blobs")
		orch.Stop()
		cancel()
	case <-done:
	}

	select {
	case <-done:
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("shutdown timeout elapsed before poll loop drained")
	}

	return nil
}

// runLoop repeats PollOnce until ctx is cancelled, sleeping interval
// between cycles. It is the sole caller of PollOnce in the running
// process.
func runLoop(ctx context.Context, orch *poller.Orchestrator, recorder *metrics.Recorder, interval time.Duration) {
	for {
		summary, err := orch.PollOnce(ctx)
		if err != nil {
			logger.Warn("poll cycle error", "error", err)
		} else {
			logger.Info("poll cycle complete",
				"processed", summary.BlobsProcessed,
				"failed", summary.BlobsFailed,
				"skipped", summary.BlobsSkipped,
				"events", summary.EventsProduced,
				"duration", summary.Duration)
		}
		recorder.ObserveCycle(summary.BlobsProcessed, summary.BlobsFailed, summary.BlobsSkipped, summary.EventsProduced, summary.Duration)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// loggingSink is the default sink used when no external event pipeline is
// configured: it logs each emitted line at debug level.
func loggingSink() stream.Sink {
	return func(ev stream.Event) error {
		logger.Debug("line",
			"blob", ev.Metadata.BlobName,
			"container", ev.Metadata.Container,
			"line", ev.LineNumber,
			"message", ev.Message)
		return nil
	}
}

// containerFromTracking extracts the source container to poll from the
// tracking strategy's sub-config, since the container being watched is
// strategy-specific (tags watches one container in place, container-move
// watches the "incoming" container, registry tracks an external path
// alongside whatever container the operator names).
func containerFromTracking(cfg config.TrackingConfig) string {
	switch cfg.Strategy {
	case "tags":
		if v, ok := cfg.Tags["container"].(string); ok {
			return v
		}
	case "container":
		if v, ok := cfg.Container["incoming"].(string); ok {
			return v
		}
	case "registry":
		if v, ok := cfg.Registry["container"].(string); ok {
			return v
		}
	}
	return ""
}
