package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/api"
	"github.com/notifyhub/broadcast/internal/api/handler"
	"github.com/notifyhub/broadcast/internal/audience"
	"github.com/notifyhub/broadcast/internal/auth"
	"github.com/notifyhub/broadcast/internal/config"
	"github.com/notifyhub/broadcast/internal/db"
	"github.com/notifyhub/broadcast/internal/fanout"
	"github.com/notifyhub/broadcast/internal/mailer"
	"github.com/notifyhub/broadcast/internal/metrics"
	"github.com/notifyhub/broadcast/internal/queue"
	"github.com/notifyhub/broadcast/internal/ratelimiter"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/scheduler"
	"github.com/notifyhub/broadcast/internal/service"
	"github.com/notifyhub/broadcast/internal/suppression"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q := queue.New()

	notifications := repository.NewPgNotificationRepository(pool)
	deliveries := repository.NewPgDeliveryRepository(pool)
	txm := repository.NewPgTxManager(pool)

	var schedClient scheduler.Client
	switch cfg.SchedulerMode {
	case config.SchedulerModeLive:
		schedClient = scheduler.NewHTTPClient(cfg.SchedulerBaseURL, cfg.SchedulerTimeout, scheduler.RetryPolicy{
			MaximumRetryAttempts: cfg.SchedulerMaxRetries,
			MaximumEventAge:      cfg.SchedulerMaxEventAge,
		})
	default:
		schedClient = scheduler.NewOfflineClient(logger)
	}
	schedClient = scheduler.NewInstrumentedClient(schedClient, m.SchedulerHook())

	mail := mailer.NewHTTPMailer(cfg.MailerBaseURL, cfg.MailerTimeout)
	suppressions := suppression.NewPgStore(pool)
	directory := audience.NewPgDirectory(pool)
	resolver := audience.NewResolver(directory)
	limiter := ratelimiter.New(cfg.SendRate)

	svc := service.NewNotificationService(
		auth.NewContextAuthenticator(),
		notifications,
		deliveries,
		txm,
		schedClient,
		cfg.FanoutTarget,
		logger,
	)

	// ---- fan-out machinery ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	runner := fanout.NewRunner(
		notifications, deliveries, txm, resolver, q,
		cfg.RetryBackoff, cfg.FanoutInterval, logger,
	)

	onSent, onFailed, onSuppressed := m.WorkerHooks()
	workerPool := fanout.NewPool(
		cfg.FanoutWorkers, q, notifications, deliveries, mail, suppressions,
		limiter, cfg.MaxSendAttempts, logger,
		fanout.MetricHooks{OnSent: onSent, OnFailed: onFailed, OnSuppressed: onSuppressed},
	)
	workerPool.Start(workerCtx)

	sweeper := fanout.NewDueSweeper(notifications, runner, cfg.DueSweepInterval, logger)
	go sweeper.Run(workerCtx)

	// Keep the queue depth gauges current for Prometheus scrapes.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				sends, retries := q.Depths()
				m.QueueDepthSends.Set(float64(sends))
				m.QueueDepthRetries.Set(float64(retries))
			}
		}
	}()

	// ---- HTTP server ----
	fanoutHandler := handler.NewFanoutHandler(workerCtx, runner, logger)
	router := api.NewRouter(api.RouterDeps{
		Service:       svc,
		Fanout:        fanoutHandler,
		Deliveries:    deliveries,
		Suppressions:  suppressions,
		Queue:         q,
		Registry:      reg,
		AdminToken:    cfg.AdminToken,
		AdminID:       cfg.AdminID,
		InternalToken: cfg.InternalToken,
		Logger:        logger,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all background goroutines to stop.
	cancelWorkers()

	// 3. Wait for triggered fan-out runs, then for in-flight sends to finish
	// their current delivery.
	fanoutHandler.Wait()
	workerPool.Wait()

	logger.Info("server stopped cleanly")
}
