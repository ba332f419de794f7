// Package ingest consumes structured documents from Kafka and feeds them to the review pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/metrics"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
)

// Message results, used as the metric label.
const (
	ResultIngested     = "ingested"
	ResultDuplicate    = "duplicate"
	ResultDeadLettered = "dead_lettered"
	ResultRetried      = "retried"
)

// Ingester creates and assesses a document.
type Ingester interface {
	Ingest(ctx context.Context, sd documentuc.StructuredDocument) (domdoc.Document, error)
}

// Reader is the consumer-group side of *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Writer is the producer side of *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Config tunes retries of a single message.
type Config struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Consumer reads one message at a time and commits it only after it was ingested
// or parked in the dead-letter topic.
type Consumer struct {
	reader   Reader
	dlq      Writer
	ingester Ingester
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewConsumer creates a consumer.
func NewConsumer(reader Reader, dlq Writer, ingester Ingester, cfg Config, logger *zap.Logger) *Consumer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = max(30*time.Second, cfg.Backoff)
	}
	return &Consumer{
		reader:   reader,
		dlq:      dlq,
		ingester: ingester,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run consumes until ctx is canceled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("fetch message", zap.Error(err))
			if err := c.sleep(ctx, c.cfg.Backoff); err != nil {
				return nil
			}
			continue
		}

		result, err := c.Handle(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Not committed: the group redelivers it after a restart.
			c.logger.Error("message left uncommitted",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}
		metrics.IngestMessagesTotal.WithLabelValues(result).Inc()

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Handle processes one message and reports what happened to it.
// An error means the message was neither ingested nor dead-lettered.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) (string, error) {
	var sd documentuc.StructuredDocument
	if err := json.Unmarshal(msg.Value, &sd); err != nil {
		return c.deadLetter(ctx, msg, domain.NewValidation("", "malformed payload: "+err.Error()))
	}
	if sd.ID == "" && len(msg.Key) > 0 {
		sd.ID = string(msg.Key)
	}

	log := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var (
		err    error
		stored string
	)
	for attempt := 0; ; attempt++ {
		var doc domdoc.Document
		doc, err = c.ingester.Ingest(ctx, sd)
		if err == nil {
			log.Info("document ingested", zap.String("document_id", doc.ID()))
			return ResultIngested, nil
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			log.Info("document already ingested", zap.String("document_id", sd.ID))
			return ResultDuplicate, nil
		}
		if doc.ID() != "" {
			// Stored but unassessed: later attempts re-assess the same document.
			stored, sd.ID = doc.ID(), doc.ID()
		}
		if !Retryable(err) || attempt >= c.cfg.MaxRetries {
			break
		}
		metrics.IngestMessagesTotal.WithLabelValues(ResultRetried).Inc()
		wait := c.backoff(attempt)
		log.Warn("ingest failed, retrying", zap.Int("attempt", attempt+1), zap.Duration("backoff", wait), zap.Error(err))
		if serr := c.sleep(ctx, wait); serr != nil {
			return "", serr
		}
	}
	if stored != "" {
		// The startup backfill assesses it once the rule index is back.
		log.Warn("document stored unassessed", zap.String("document_id", stored), zap.Error(err))
		return ResultIngested, nil
	}
	return c.deadLetter(ctx, msg, err)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) (string, error) {
	out := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(c.now().UTC().Format(time.RFC3339))},
		),
	}

	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err = c.dlq.WriteMessages(ctx, out); err == nil {
			c.logger.Warn("message dead-lettered",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(cause),
			)
			return ResultDeadLettered, nil
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		if serr := c.sleep(ctx, c.backoff(attempt)); serr != nil {
			return "", serr
		}
	}
	return "", fmt.Errorf("write dead letter: %w", err)
}

// backoff doubles the base delay per attempt, capped at MaxBackoff.
func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.cfg.Backoff
	for i := 0; i < attempt && d < c.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.cfg.MaxBackoff)
}

// Retryable reports whether a failed ingest may succeed on a later attempt.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidTransition):
		return false
	case errors.Is(err, domain.ErrIndexUnavailable),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrEmbeddingQuotaExceeded),
		errors.Is(err, domain.ErrEmbeddingProviderError),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	// Unknown failures are usually the database; give them the retry budget.
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
