package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/app"
	"github.com/kailas-cloud/docreview/internal/config"
	logpkg "github.com/kailas-cloud/docreview/internal/logger"
	"github.com/kailas-cloud/docreview/internal/metrics"
	"github.com/kailas-cloud/docreview/internal/observability"
	chiTransport "github.com/kailas-cloud/docreview/internal/transport/chi"
	"github.com/kailas-cloud/docreview/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if err := run(env, cfg, logger); err != nil {
		logger.Fatal("docreview stopped", zap.Error(err))
	}
}

func run(env string, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting docreview API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: env,
		Version:     version.Version,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Close failed", zap.Error(err))
		}
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}
	go a.RunBackground(ctx)

	srv := chiTransport.NewServer(chiTransport.Deps{
		Documents: a.Documents,
		Reviews:   a.Reviews,
		Assessor:  a.Risk,
		Batch:     a.Batch,
		Audit:     a.Audit,
		Rules:     a.Rules,
		Usage:     a.Usage,
		Health:    a.Health,
		Gatherer:  prometheus.DefaultGatherer,
	}, logger).WithRetryAfter(cfg.HTTP.RetryAfterSec)

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("No API keys configured, authentication disabled")
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(cfg.Auth.APIKeys),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
	return nil
}
