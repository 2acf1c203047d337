package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/CosminFerecatu/mail-queue-sub000/analytics"
	"github.com/CosminFerecatu/mail-queue-sub000/broker"
	"github.com/CosminFerecatu/mail-queue-sub000/config"
	"github.com/CosminFerecatu/mail-queue-sub000/handler"
	"github.com/CosminFerecatu/mail-queue-sub000/metrics"
	apimiddleware "github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/ratelimit"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/CosminFerecatu/mail-queue-sub000/service"
	"github.com/CosminFerecatu/mail-queue-sub000/smtppool"
	"github.com/CosminFerecatu/mail-queue-sub000/tracking"
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
	logger.Info().Str("addr", cfg.Server.Addr).Msg("starting mail-queue api")

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
	credentials := repository.NewCredentialRepository(dbPool)
	smtpConfigs := repository.NewSMTPConfigRepository(dbPool)
	suppressions := repository.NewSuppressionRepository(dbPool)
	reputations := repository.NewReputationRepository(dbPool)
	templates := repository.NewTemplateRepository(dbPool)
	scheduledJobs := repository.NewScheduledJobRepository(dbPool)
	trackingLinks := repository.NewTrackingLinkRepository(dbPool)
	analyticsRepo := repository.NewAnalyticsRepository(dbPool)

	jobBroker := broker.NewRedisBroker(redisClient)
	limiter := ratelimit.New(redisClient)
	rewriter := tracking.New(trackingLinks, events, cfg.Tracking.TrackingHost)
	smtpPool := smtppool.New("mail-queue")
	aggregator := analytics.New(analyticsRepo)

	auth, err := apimiddleware.NewAuthenticator(credentials, 1024, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build authenticator")
	}

	submission := service.NewSubmissionService(emails, events, queues, apps, suppressions, templates, jobBroker, limiter, logger)

	h := handler.New(handler.Config{
		Submission: submission, Emails: emails, Events: events, Queues: queues,
		Credentials: credentials, SMTPConfigs: smtpConfigs, Suppressions: suppressions,
		Reputations: reputations, Templates: templates, ScheduledJobs: scheduledJobs,
		Analytics: aggregator, Tracking: rewriter, SMTPPool: smtpPool, Broker: jobBroker,
		Auth: auth, RateLimit: apimiddleware.RateLimit(limiter),
		Idempotency: apimiddleware.IdempotencyReplay(redisClient, logger), Logger: logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// §9 Open Question 1: run one reconciliation pass at startup, covering
	// emails committed but never enqueued before a prior crash.
	if n, err := reconcileOnce(ctx, emails, jobBroker, 500); err != nil {
		logger.Error().Err(err).Msg("startup reconciliation sweep failed")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("startup reconciliation sweep re-enqueued emails")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Router(),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsServer := metrics.NewServer(cfg.Metrics.Addr)

	go func() {
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("starting metrics listener")
		if err := metricsServer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting http listener")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}

// reconcileOnce re-enqueues queued/processing emails that survived a crash
// between the submission commit and the broker publish (§9 Open Question
// 1). The worker process runs the same sweep on an interval; this is the
// API process's one-shot pass at boot.
func reconcileOnce(ctx context.Context, emails *repository.EmailRepository, b broker.Broker, limit int) (int, error) {
	due, err := emails.FindDueForReconciliation(ctx, time.Now().Add(-1*time.Minute), limit)
	if err != nil {
		return 0, err
	}
	for _, e := range due {
		body, err := json.Marshal(models.EmailJob{EmailID: e.ID, AppID: e.AppID, QueueID: e.QueueID})
		if err != nil {
			continue
		}
		_ = b.Enqueue(ctx, broker.LaneEmail, 5, 0, body)
	}
	return len(due), nil
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
