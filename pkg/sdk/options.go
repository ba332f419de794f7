package sdk

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver string // "sqlite" or "postgres"
	dsn    string

	embedder     Embedder
	hashDims     int
	dupThreshold float64
	seedPath     string
	highOverCap  float64
	maxBatchSize int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithDatabase selects the database. driver is "sqlite" or "postgres".
// Default: an in-memory sqlite database that lives as long as the client.
func WithDatabase(driver, dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driver
		c.dsn = dsn
	})
}

// WithEmbedder sets the text embedding provider used by the rule index.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithHashDimensions sets the vector size of the built-in embedder. Default: 384.
func WithHashDimensions(dims int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hashDims = dims
	})
}

// WithDuplicateThreshold sets the similarity above which two documents are duplicate candidates.
// Default: 0.92.
func WithDuplicateThreshold(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.dupThreshold = t
	})
}

// WithHighOverCapRatio sets the overage (0.5 = 50% over a rule's cap) that raises a HIGH flag.
func WithHighOverCapRatio(r float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.highOverCap = r
	})
}

// WithSeedRules loads rules from a YAML or JSON file on start. Existing rule ids are kept.
func WithSeedRules(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.seedPath = path
	})
}

// WithMaxBatchSize caps the number of ids per batch operation. Default: 1000.
func WithMaxBatchSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxBatchSize = size
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
