/*
Package main initializes the catalog bulk backend.

This backend lets admins run bulk operations over the movie and series catalog:
refreshing metadata from TMDB, importing titles listed in an RSS feed, and changing
publication status. Jobs are queued, processed in batches by background workers, and
their progress is kept in a shared store that clients poll.

Run the application:

	$ go run .

Endpoints:
  - POST /bulk/{operation}: Trigger a bulk refresh, import or status job.
  - GET /bulk/progress?key=<progress-key>: Read the progress of a job.
  - GET /health, /health/live, /health/ready: Health checks.
  - GET /metrics: Prometheus metrics.

SERVICES=http or SERVICES=worker splits the API and the workers into separate
processes; both need STORE_DRIVER=redis so they share progress and queue state.
*/
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/config"
	_ "github.com/Nexora-Open-Source/catalog-bulk-backend/docs"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/middleware"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/queue"
)

// @title Catalog Bulk API
// @version 1.0
// @description Bulk refresh, import and status operations over the movie and series catalog.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Initialize configuration and services
	appConfig, err := config.NewAppConfig(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := appConfig.Services.Close(); err != nil {
			middleware.Logger.WithError(err).Error("Failed to close services cleanly")
		}
	}()
	cfg := appConfig.Config
	container := appConfig.Services.Container

	// Initialize structured logger
	middleware.InitLogger(cfg.LogLevel)
	logger := middleware.Logger
	logger.WithField("services", cfg.Services).Info("Starting catalog bulk backend")

	// Initialize tracing
	tracerProvider, err := monitoring.InitTracing(cfg.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		monitoring.ShutdownTracing(shutdownCtx, tracerProvider, logger)
	}()

	if cfg.RunsService(config.ServiceWorker) {
		runner, err := container.GetRunner()
		if err != nil {
			return err
		}
		q, err := container.GetQueue()
		if err != nil {
			return err
		}
		// Jobs claimed by a worker that died are pushed back before new ones are taken
		if rq, ok := q.(*queue.RedisQueue); ok {
			recovered, err := rq.Recover(ctx)
			if err != nil {
				return err
			}
			if recovered > 0 {
				logger.WithField("jobs", recovered).Warn("Requeued jobs left in flight by a previous worker")
			}
		}
		runner.Start(ctx)
		logger.WithField("workers", cfg.Bulk.Workers).Info("Bulk workers started")
	}

	if !cfg.RunsService(config.ServiceHTTP) {
		<-ctx.Done()
		logger.Info("Shutting down workers")
		return nil
	}

	handler, err := container.GetHandler()
	if err != nil {
		return err
	}
	healthHandler, err := container.GetHealthHandler()
	if err != nil {
		return err
	}

	// Initialize rate limiter with configuration
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	go limiter.RunCleanup(ctx, cfg.ClientCleanupInterval)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: newRouter(cfg, handler, healthHandler, limiter),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.ServerPort).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
