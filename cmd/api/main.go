// Package main is the entry point for the farewatch API server.
//
// It loads configuration, connects the database pool, wires the fare search
// and email provider clients into the trigger engine and sweep coordinator,
// mounts the HTTP chassis, and starts the in-process sweep and archive
// schedulers. Graceful shutdown is handled via OS signal interception
// (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"farewatch/internal/api/handlers"
	"farewatch/internal/config"
	"farewatch/internal/core"
	"farewatch/internal/db"
	"farewatch/internal/engine"
	"farewatch/internal/external"
	"farewatch/internal/notify"
	"farewatch/internal/observe"
	"farewatch/internal/queue"
	"farewatch/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("farewatch API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	watchRepo := db.NewWatchRepository(pool)
	alertRepo := db.NewAlertRepository(pool)

	fareProvider := external.NewAmadeusClient(
		&http.Client{Timeout: cfg.Amadeus.Timeout},
		cfg.Amadeus,
		logger,
	)
	emailSender := external.NewSendGridClient(
		&http.Client{Timeout: 10 * time.Second},
		external.SendGridClientConfig{
			APIKey:      cfg.Email.SendGridAPIKey,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Logger:      logger,
		},
	)

	renderer, err := notify.NewRenderer(cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("parsing email templates: %w", err)
	}
	notifier := notify.NewEmailNotifier(renderer, emailSender, logger)

	selector := engine.NewSelector(fareProvider, logger)
	trigger := engine.NewTrigger(
		selector,
		watchRepo,
		alertRepo,
		notifier,
		engine.TriggerConfig{MinNotifyDeltaUsd: cfg.Sweep.MinNotifyDeltaUsd},
		logger,
	)

	recorder, triggerQueue := buildAWS(ctx, cfg, logger)
	if recorder != nil {
		notifier.WithDeliveryRecorder(recorder)
	}

	sweeper := engine.NewSweeper(
		watchRepo,
		trigger,
		recorder,
		engine.SweepConfig{
			Pacing:             cfg.Sweep.Pacing,
			ResultPreviewLimit: cfg.Sweep.ResultPreviewLimit,
		},
		logger,
	)

	sweepScheduler := scheduler.NewSweepScheduler(sweeper, cfg.Sweep.Interval, logger)
	sweepScheduler.Start(ctx)
	defer sweepScheduler.Stop()

	archiver := scheduler.NewAlertArchiver(alertRepo, cfg.Sweep.ArchiveDir, cfg.Sweep.AlertRetention, logger)
	archiveScheduler := scheduler.NewArchiveScheduler(archiver, logger)
	archiveScheduler.Start(ctx)
	defer archiveScheduler.Stop()

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewProbe(pool))

	watchHandler := handlers.NewWatchHandler(watchRepo, alertRepo, srv.Validator, logger)

	var enqueuer handlers.TriggerEnqueuer
	if triggerQueue != nil {
		enqueuer = triggerQueue
	}
	sweepHandler := handlers.NewSweepHandler(
		sweepScheduler,
		watchRepo,
		trigger,
		watchRepo,
		enqueuer,
		cfg.Sweep.Interval,
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		watchHandler.RegisterRoutes,
		sweepHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	return serveHTTP(ctx, srv, cfg, logger)
}

// buildAWS wires the optional AWS-backed collaborators: CloudWatch sweep
// metrics and the SQS trigger queue. Either may be absent; the engine and
// handlers degrade to in-process behavior.
func buildAWS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*observe.SweepMetrics, *queue.TriggerQueue) {
	if cfg.AWS.MetricsNamespace == "" && cfg.AWS.TriggerQueueURL == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Warn("AWS config unavailable; metrics and trigger queue disabled", "error", err)
		return nil, nil
	}

	var recorder *observe.SweepMetrics
	if cfg.AWS.MetricsNamespace != "" {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		recorder = observe.NewSweepMetrics(cwClient, cfg.AWS.MetricsNamespace, logger)
	}

	var triggerQueue *queue.TriggerQueue
	if cfg.AWS.TriggerQueueURL != "" {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		triggerQueue = queue.NewTriggerQueue(sqsClient, cfg.AWS.TriggerQueueURL, logger)
	}

	return recorder, triggerQueue
}

// serveHTTP runs the HTTP listener until the signal context is cancelled,
// then drains with a 10 second deadline.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
