// Command harvester runs the PNCP edital extraction service: an HTTP API for
// triggering runs, a cron schedule for the daily sweep, and the pipeline that
// scans the portal, fetches details, and reconciles them into the database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/api"
	"github.com/licitatech/pncp-harvester/internal/attachments"
	"github.com/licitatech/pncp-harvester/internal/clock/system"
	"github.com/licitatech/pncp-harvester/internal/config"
	"github.com/licitatech/pncp-harvester/internal/engine"
	"github.com/licitatech/pncp-harvester/internal/fetcher"
	"github.com/licitatech/pncp-harvester/internal/httpclient"
	"github.com/licitatech/pncp-harvester/internal/logging"
	gcsstore "github.com/licitatech/pncp-harvester/internal/objstore/gcs"
	memstore "github.com/licitatech/pncp-harvester/internal/objstore/memory"
	"github.com/licitatech/pncp-harvester/internal/pncp"
	"github.com/licitatech/pncp-harvester/internal/pncpapi"
	"github.com/licitatech/pncp-harvester/internal/progress"
	"github.com/licitatech/pncp-harvester/internal/progress/sinks"
	"github.com/licitatech/pncp-harvester/internal/renderer"
	"github.com/licitatech/pncp-harvester/internal/repository/postgres"
	"github.com/licitatech/pncp-harvester/internal/scanner"
	"github.com/licitatech/pncp-harvester/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, stop); err != nil {
		logger.Fatal("harvester failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, stop context.CancelFunc) error {
	clk := system.New()

	httpFetcher := httpclient.New(httpclient.Config{
		UserAgent: cfg.Extract.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
		Retry: httpclient.RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxRetries + 1,
			BaseDelay:   time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		},
	}, logger.Named("http"))

	rend, err := renderer.New(renderer.Config{
		UserAgent:      cfg.Extract.UserAgent,
		MaxConcurrency: cfg.Render.MaxConcurrency,
		NavTimeout:     time.Duration(cfg.Render.NavTimeoutSec) * time.Second,
		Settle:         time.Duration(cfg.Render.SettleMs) * time.Millisecond,
		DomainQPS:      cfg.Render.DomainQPS,
	}, logger.Named("renderer"))
	if err != nil {
		return fmt.Errorf("start renderer: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rend.Close(closeCtx); err != nil {
			logger.Warn("renderer close", zap.Error(err))
		}
	}()

	apiClient := pncpapi.New(cfg.Portal.APIURL, httpFetcher, logger.Named("pncpapi"))
	scan := scanner.New(rend, cfg.Portal.BaseURL, logger.Named("scanner"))

	store, storeCleanup, err := buildObjectStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storeCleanup()

	downloadFetcher := httpclient.New(httpclient.Config{
		UserAgent: cfg.Extract.UserAgent,
		Timeout:   cfg.DownloadTimeout(),
		Retry: httpclient.RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxRetries + 1,
			BaseDelay:   time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		},
	}, logger.Named("downloads"))
	attach := attachments.New(downloadFetcher, store, cfg.Storage.Prefix, clk, logger.Named("attachments"))

	detail := fetcher.New(rend, apiClient, attach, clk, cfg.Portal.BaseURL, logger.Named("fetcher"))

	if cfg.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	repo, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	hub, hubCleanup, err := buildProgressHub(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer hubCleanup()

	eng := engine.New(scan, detail, repo, hub, clk, engine.Config{
		MaxPages:      cfg.Extract.MaxPages,
		PageSize:      cfg.Extract.PageSize,
		MaxCandidates: cfg.Extract.MaxCandidates,
		Pacing:        cfg.Pacing(),
	}, logger.Named("engine"))

	apiCfg := api.Config{}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}

	// The scheduler job shares the API's single-flight guard so a cron tick
	// never overlaps a manually triggered run. The server variable is set
	// before Start, which is the first point the job can fire.
	var server *api.Server
	job := func(jobCtx context.Context) {
		if !server.TryAcquireRun() {
			logger.Warn("scheduled run skipped, another run is in flight")
			return
		}
		defer server.ReleaseRun()
		summary, err := eng.Run(jobCtx, engine.RunParams{
			SaveAttachments: cfg.Extract.SaveAttachments,
		})
		if err != nil {
			logger.Error("scheduled run failed", zap.Error(err))
			return
		}
		server.RecordRun(summary)
	}

	sched, err := scheduler.New(cfg.Scheduler.CronSpec, cfg.Scheduler.Timezone, job, logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if !cfg.Scheduler.Enabled {
		sched.Disable()
	}

	server = api.NewServer(eng, sched, repo, apiCfg, logger.Named("api"))

	sched.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			logger.Warn("scheduler stop", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// buildObjectStore returns the GCS store when a bucket is configured and an
// in-memory store otherwise, so local runs work without cloud credentials.
func buildObjectStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (pncp.ObjectStore, func(), error) {
	if cfg.Storage.GCSBucket == "" {
		logger.Info("storage.gcs_bucket not set, using in-memory object store")
		return memstore.New(), func() {}, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init gcs client: %w", err)
	}
	store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Storage.GCSBucket})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("init gcs store: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("gcs client close", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

// buildProgressHub assembles the hub with the always-on log and Prometheus
// sinks, plus the Pub/Sub sink when a project is configured.
func buildProgressHub(ctx context.Context, cfg config.Config, logger *zap.Logger) (*progress.Hub, func(), error) {
	sinkList := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	sinkList = append(sinkList, promSink)

	var psClient *pubsub.Client
	if cfg.PubSub.ProjectID != "" {
		psClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub client: %w", err)
		}
		topic := psClient.Topic(cfg.PubSub.TopicName)
		psSink, err := sinks.NewPubSubSink(topic)
		if err != nil {
			_ = psClient.Close()
			return nil, nil, fmt.Errorf("init pubsub sink: %w", err)
		}
		sinkList = append(sinkList, psSink)
	}

	hub := progress.NewHub(progress.Config{Logger: logger.Named("hub")}, sinkList...)
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
		if psClient != nil {
			if err := psClient.Close(); err != nil {
				logger.Warn("pubsub client close", zap.Error(err))
			}
		}
	}
	return hub, cleanup, nil
}
