package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/CosminFerecatu/mail-queue-sub000/analytics"
	"github.com/CosminFerecatu/mail-queue-sub000/bounceproc"
	"github.com/CosminFerecatu/mail-queue-sub000/broker"
	"github.com/CosminFerecatu/mail-queue-sub000/config"
	"github.com/CosminFerecatu/mail-queue-sub000/cron"
	"github.com/CosminFerecatu/mail-queue-sub000/metrics"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/ratelimit"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/CosminFerecatu/mail-queue-sub000/reputation"
	"github.com/CosminFerecatu/mail-queue-sub000/service"
	"github.com/CosminFerecatu/mail-queue-sub000/smtppool"
	"github.com/CosminFerecatu/mail-queue-sub000/tracking"
	"github.com/CosminFerecatu/mail-queue-sub000/webhook"
	"github.com/CosminFerecatu/mail-queue-sub000/worker"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Server)
	logger.Info().Msg("starting mail-queue worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbPool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()

	emails := repository.NewEmailRepository(dbPool)
	events := repository.NewEventRepository(dbPool)
	queues := repository.NewQueueRepository(dbPool)
	apps := repository.NewAppRepository(dbPool)
	smtpConfigs := repository.NewSMTPConfigRepository(dbPool)
	suppressions := repository.NewSuppressionRepository(dbPool)
	reputations := repository.NewReputationRepository(dbPool)
	templates := repository.NewTemplateRepository(dbPool)
	trackingLinks := repository.NewTrackingLinkRepository(dbPool)
	analyticsRepo := repository.NewAnalyticsRepository(dbPool)
	webhookDeliveries := repository.NewWebhookDeliveryRepository(dbPool)
	scheduledJobs := repository.NewScheduledJobRepository(dbPool)

	jobBroker := broker.NewRedisBroker(redisClient)
	limiter := ratelimit.New(redisClient)
	rewriter := tracking.New(trackingLinks, events, cfg.Tracking.TrackingHost)
	smtpPool := smtppool.New("mail-queue")
	aggregator := analytics.New(analyticsRepo)

	webhookDispatcher := webhook.New(webhookDeliveries, apps.GetByID, jobBroker, logger)
	retryController := bounceproc.NewRetryController(emails, events, suppressions, jobBroker, webhookDispatcher, logger)
	bounceProcessor := bounceproc.NewBounceProcessor(emails, events, suppressions, analyticsRepo, webhookDispatcher, logger)

	submission := service.NewSubmissionService(emails, events, queues, apps, suppressions, templates, jobBroker, limiter, logger)
	scheduler := cron.New(scheduledJobs, templates, submission, time.Duration(cfg.Cron.TickSeconds)*time.Second, logger)

	reputationEngine := reputation.New(reputations, time.Duration(cfg.Reputation.IntervalSeconds)*time.Second, logger)

	dispatcher := worker.New(worker.Config{
		Emails: emails, Events: events, Queues: queues, Suppressions: suppressions,
		SMTPConfigs: smtpConfigs, Reputations: reputations, Broker: jobBroker, Limiter: limiter,
		Pool: smtpPool, Tracking: rewriter, Retry: retryController, Bounces: bounceProcessor,
		Webhooks: webhookDispatcher, Analytics: aggregator, NumWorkers: cfg.Worker.Concurrency, Logger: logger,
	})

	metricsServer := metrics.NewServer(cfg.Metrics.Addr)

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Str("loop", name).Msg("starting")
			fn()
			logger.Info().Str("loop", name).Msg("stopped")
		}()
	}

	run("dispatcher", func() { dispatcher.Run(ctx) })
	run("scheduler", func() { scheduler.Run(ctx) })
	run("reputation", func() { reputationEngine.Run(ctx) })
	run("webhook-sweep", func() { webhookSweepLoop(ctx, webhookDispatcher, cfg.Webhook, logger) })
	run("broker-reap", func() { brokerReapLoop(ctx, jobBroker, logger) })
	run("reconcile", func() { reconcileLoop(ctx, emails, jobBroker, cfg.Worker, logger) })
	run("suppression-cleanup", func() { suppressionCleanupLoop(ctx, suppressions, logger) })
	run("metrics", func() {
		if err := metricsServer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	})

	<-ctx.Done()
	logger.Info().Msg("shutting down, waiting for loops to drain")
	wg.Wait()
	logger.Info().Msg("shutdown complete")
}

// webhookSweepLoop retries due webhook deliveries on a fixed interval
// (C10's backoff vector lives in the dispatcher itself; this just decides
// when to ask it to look).
func webhookSweepLoop(ctx context.Context, d *webhook.Dispatcher, cfg config.WebhookConfig, logger zerolog.Logger) {
	interval := time.Duration(cfg.SweepInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := d.Sweep(ctx, 100); err != nil {
				logger.Error().Err(err).Msg("webhook sweep failed")
			} else if n > 0 {
				logger.Debug().Int("count", n).Msg("webhook sweep dispatched deliveries")
			}
		}
	}
}

// brokerReapLoop recovers jobs whose lease expired without an ack/nack,
// e.g. a worker process that crashed mid-delivery.
func brokerReapLoop(ctx context.Context, b *broker.RedisBroker, logger zerolog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := b.ReapExpired(ctx); err != nil {
				logger.Error().Err(err).Msg("broker lease reap failed")
			} else if n > 0 {
				logger.Info().Int("count", n).Msg("reaped expired broker leases")
			}
		}
	}
}

// reconcileLoop is the periodic half of §9 Open Question 1: the API
// process covers the startup window, this loop covers every crash after
// that by periodically re-publishing queued/processing emails that have
// been sitting long enough to suggest their broker job never landed.
func reconcileLoop(ctx context.Context, emails *repository.EmailRepository, b broker.Broker, cfg config.WorkerConfig, logger zerolog.Logger) {
	interval := time.Duration(cfg.ReconcileInterval) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := emails.FindDueForReconciliation(ctx, time.Now().Add(-1*time.Minute), 500)
			if err != nil {
				logger.Error().Err(err).Msg("reconciliation query failed")
				continue
			}
			for _, e := range due {
				body, err := json.Marshal(models.EmailJob{EmailID: e.ID, AppID: e.AppID, QueueID: e.QueueID})
				if err != nil {
					continue
				}
				if err := b.Enqueue(ctx, broker.LaneEmail, 5, 0, body); err != nil {
					logger.Error().Err(err).Str("emailId", e.ID.String()).Msg("reconciliation re-enqueue failed")
				}
			}
			if len(due) > 0 {
				logger.Info().Int("count", len(due)).Msg("reconciliation sweep re-enqueued emails")
			}
		}
	}
}

// suppressionCleanupLoop periodically purges expired soft-bounce
// suppression entries (§3: soft bounce entries carry a 7 day expiry) so the
// table doesn't grow unbounded with stale rows that would otherwise just
// be skipped on every lookup.
func suppressionCleanupLoop(ctx context.Context, suppressions *repository.SuppressionRepository, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := suppressions.DeleteExpired(ctx); err != nil {
				logger.Error().Err(err).Msg("suppression cleanup failed")
			} else if n > 0 {
				logger.Info().Int64("count", n).Msg("purged expired suppression entries")
			}
		}
	}
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
