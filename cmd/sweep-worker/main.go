// Package main is the entry point for the farewatch sweep worker.
//
// The worker owns background fare evaluation when the API is deployed
// without an in-process scheduler: it runs scheduled sweeps at the
// configured interval and drains targeted trigger requests from the SQS
// trigger queue between them. A targeted message that fails evaluation is
// left on the queue and retried after its visibility timeout.
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

	"farewatch/internal/config"
	"farewatch/internal/db"
	"farewatch/internal/engine"
	"farewatch/internal/external"
	"farewatch/internal/notify"
	"farewatch/internal/observe"
	"farewatch/internal/queue"
	"farewatch/internal/scheduler"
	"farewatch/internal/types"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("farewatch sweep worker starting",
		"environment", cfg.Environment,
		"sweep_interval", cfg.Sweep.Interval,
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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	var recorder *observe.SweepMetrics
	if cfg.AWS.MetricsNamespace != "" {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		recorder = observe.NewSweepMetrics(cwClient, cfg.AWS.MetricsNamespace, logger)
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

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AWS.TriggerQueueURL != "" {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})

		handler := &triggerHandler{watches: watchRepo, trigger: trigger, logger: logger}
		consumer := queue.NewConsumer(sqsClient, cfg.AWS.TriggerQueueURL, handler, logger)

		g.Go(func() error {
			logger.Info("trigger queue consumer started", "queue_url", cfg.AWS.TriggerQueueURL)
			return consumer.Run(gctx)
		})
	} else {
		logger.Info("no trigger queue configured; running scheduled sweeps only")
		g.Go(func() error {
			<-gctx.Done()
			return gctx.Err()
		})
	}

	err = g.Wait()
	logger.Info("sweep worker stopped")
	return err
}

// triggerHandler evaluates one queued targeted trigger request.
type triggerHandler struct {
	watches *db.WatchRepository
	trigger *engine.Trigger
	logger  *slog.Logger
}

// HandleTrigger loads the watch and runs one evaluation. A missing watch is
// dropped as handled: it was deleted between enqueue and processing, and
// retrying cannot succeed.
func (h *triggerHandler) HandleTrigger(ctx context.Context, msg types.TriggerMessage) error {
	watch, err := h.watches.GetByID(ctx, msg.WatchID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundWatch {
			h.logger.WarnContext(ctx, "dropping trigger for deleted watch", "watch_id", msg.WatchID)
			return nil
		}
		return err
	}

	result := h.trigger.Run(ctx, watch)
	h.logger.InfoContext(ctx, "targeted trigger processed",
		"watch_id", watch.ID,
		"action", result.Action,
		"reason", result.Reason,
		"requested_reason", msg.Reason,
	)

	if result.Action == types.ActionError {
		return fmt.Errorf("trigger failed: %s", result.Reason)
	}
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
