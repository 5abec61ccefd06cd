package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docpipe/docpipe/internal/blob"
	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/event"
	"github.com/docpipe/docpipe/internal/extract"
	"github.com/docpipe/docpipe/internal/httpapi"
	"github.com/docpipe/docpipe/internal/index"
	"github.com/docpipe/docpipe/internal/ledger"
	"github.com/docpipe/docpipe/internal/lifecycle"
	"github.com/docpipe/docpipe/internal/logging"
	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/query"
	"github.com/docpipe/docpipe/internal/retry"
	"github.com/docpipe/docpipe/internal/router"
	"github.com/docpipe/docpipe/internal/watch"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the document pipeline and search API",
		Long: `Serve starts the full pipeline: the drop-folder watcher (local mode),
the extraction and indexing stages, and the HTTP search API. It runs
until interrupted and shuts down gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if debugMode {
				cfg.Logging.Level = "debug"
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logCfg := logging.Config{Level: cfg.Logging.Level, WriteToStderr: true}
	if cfg.Logging.ToFile {
		logCfg.FilePath = cfg.LogPath()
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCleanup()

	lock := lifecycle.NewFileLock(cfg.LockPath())
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another docpipe instance is already using %s", cfg.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	led, err := ledger.NewSQLiteLedger(cfg.LedgerPath(), ledger.Options{
		MaxAttempts: cfg.Pipeline.MaxDeliveries,
		Lease:       cfg.Pipeline.Lease.D(),
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	idx, err := index.NewBleveIndex(cfg.IndexPath(), logger)
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer idx.Close()

	sink, err := retry.NewFileSink(cfg.DeadLetterPath())
	if err != nil {
		return fmt.Errorf("open dead-letter journal: %w", err)
	}

	mgr := retry.NewManager(retry.Policy{
		MaxAttempts: cfg.Pipeline.RetryAttempts,
		Backoff: errors.BackoffConfig{
			Base:       cfg.Pipeline.BackoffBase.D(),
			Max:        cfg.Pipeline.BackoffMax.D(),
			Multiplier: 2.0,
			Jitter:     true,
		},
		Timeout: cfg.Pipeline.StageTimeout.D(),
	}, led, sink, logger)

	indexer := index.NewIndexer(store, idx, index.Config{
		IntermediateBucket: cfg.Storage.IntermediateBucket,
		IntermediatePrefix: cfg.Storage.IntermediatePrefix,
	}, logger)

	// The extractor emits into the pipeline, so wire the handler lazily.
	var extractor *extract.Extractor
	rt := router.New(router.RouteConfig{
		RawSuffix:          cfg.Storage.RawSuffix,
		IntermediatePrefix: cfg.Storage.IntermediatePrefix,
		ArtifactSuffix:     ".json",
	}, led, mgr, map[event.Stage]router.StageHandler{
		event.StageExtract: stageFunc(func(ctx context.Context, ev event.ProcessingEvent) error {
			return extractor.Handle(ctx, ev)
		}),
		event.StageIndex: indexer,
	}, logger)

	pipe := pipeline.New(rt, pipeline.Config{
		Workers:   cfg.Pipeline.Workers,
		QueueSize: cfg.Pipeline.QueueSize,
	}, logger)

	extractor = extract.New(store, extract.Config{
		RawBucket:          cfg.Storage.RawBucket,
		IntermediateBucket: cfg.Storage.IntermediateBucket,
		IntermediatePrefix: cfg.Storage.IntermediatePrefix,
	}, pipe, logger)

	svc := query.NewService(idx, query.Config{
		MaxResults:    cfg.Query.MaxResults,
		SnippetRadius: cfg.Query.SnippetRadius,
		CacheSize:     cfg.Query.CacheSize,
		CacheTTL:      cfg.Query.CacheTTL.D(),
	}, logger)

	api := httpapi.New(cfg.Server.Addr, svc, pipe.Depth, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipe.Run(ctx) })
	g.Go(func() error { return api.Run(ctx) })

	if cfg.Storage.Mode == "local" {
		watcher := watch.New(watch.Options{
			Root:           filepath.Join(cfg.BlobRoot(), cfg.Storage.RawBucket),
			Bucket:         cfg.Storage.RawBucket,
			DebounceWindow: cfg.Pipeline.DebounceWindow.D(),
		}, pipe, logger)
		g.Go(func() error { return watcher.Run(ctx) })
	}

	logger.Info("docpipe_serving",
		slog.String("addr", cfg.Server.Addr),
		slog.String("storage", cfg.Storage.Mode),
		slog.String("data_dir", cfg.DataDir))

	err = g.Wait()
	if err == context.Canceled {
		err = nil
	}
	logger.Info("docpipe_stopped")
	return err
}

// openStore builds the configured blob store.
func openStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Mode {
	case "s3":
		return blob.NewS3Store(blob.S3Config{
			EndpointURL:     cfg.Storage.S3Endpoint,
			Region:          cfg.Storage.S3Region,
			AccessKeyID:     cfg.Storage.S3AccessKey,
			SecretAccessKey: cfg.Storage.S3SecretKey,
			UseSSL:          cfg.Storage.S3UseSSL,
		})
	default:
		return blob.NewLocalStore(cfg.BlobRoot())
	}
}

type stageFunc func(ctx context.Context, ev event.ProcessingEvent) error

func (f stageFunc) Handle(ctx context.Context, ev event.ProcessingEvent) error {
	return f(ctx, ev)
}
