package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/app"
	"github.com/kailas-cloud/docreview/internal/config"
	logpkg "github.com/kailas-cloud/docreview/internal/logger"
	"github.com/kailas-cloud/docreview/internal/metrics"
	"github.com/kailas-cloud/docreview/internal/transport/ingest"
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ingest worker stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	logger.Info("Starting docreview ingest worker", zap.String("version", version.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	if err := a.Start(ctx); err != nil {
		return err
	}
	go a.RunBackground(ctx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
	})
	defer func() { _ = reader.Close() }()

	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.DLQTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}
	defer func() { _ = dlq.Close() }()

	logger.Info("Consuming",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
		zap.String("dlq_topic", cfg.Kafka.DLQTopic),
	)

	consumer := ingest.NewConsumer(reader, dlq, a.Documents, ingest.Config{
		MaxRetries: cfg.Kafka.MaxRetries,
		Backoff:    cfg.Kafka.Backoff(),
		MaxBackoff: cfg.Kafka.MaxBackoff(),
	}, logger.Named("ingest"))
	err = consumer.Run(ctx)
	logger.Info("Ingest worker stopped")
	return err
}
