// Package config loads the per-environment YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the docreview service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Policy    PolicyConfig    `yaml:"policy"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Duplicate DuplicateConfig `yaml:"duplicate"`
	Batch     BatchConfig     `yaml:"batch"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Lock      LockConfig      `yaml:"lock"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	RetryAfterSec   int `yaml:"retry_after_sec"`
}

// DatabaseConfig holds the relational store settings.
type DatabaseConfig struct {
	Driver             string `yaml:"driver"` // postgres, sqlite
	DSN                string `yaml:"dsn"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
	SlowQueryMs        int    `yaml:"slow_query_ms"`
}

// ValkeyConfig holds the key-value store settings. Empty Addrs disables valkey:
// the embedding cache and shared quota are off and the duplicate backend must be memory.
type ValkeyConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ClientName       string   `yaml:"client_name"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider      string       `yaml:"provider"` // hash, openai
	HashDims      int          `yaml:"hash_dims"`
	OpenAI        OpenAIConfig `yaml:"openai"`
	CacheTTLHours int          `yaml:"cache_ttl_hours"`
	Budget        BudgetConfig `yaml:"budget"`
}

// OpenAIConfig holds the OpenAI-compatible provider settings.
type OpenAIConfig struct {
	Name                string `yaml:"name"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// BudgetConfig holds token quota settings.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"` // 0 = unlimited
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"`
	Action               string  `yaml:"action"` // reject | warn
}

// PolicyConfig tunes rule retrieval and the rule index.
type PolicyConfig struct {
	TopK               int     `yaml:"top_k"`
	HighOverCapRatio   float64 `yaml:"high_over_cap_ratio"`
	MinSimilarity      float64 `yaml:"min_similarity"` // cosine floor for rules without a keyword match
	RefreshIntervalSec int     `yaml:"refresh_interval_sec"` // 0 disables the background refresher
	EmbedBatchSize     int     `yaml:"embed_batch_size"`
	SeedPath           string  `yaml:"seed_path"`
}

// AnomalyConfig holds anomaly detector thresholds.
type AnomalyConfig struct {
	MinSamples     int      `yaml:"min_samples"`
	Sigma          float64  `yaml:"sigma"`
	MADMinSamples  int      `yaml:"mad_min_samples"`
	MADThreshold   float64  `yaml:"mad_threshold"`
	RequiredFields []string `yaml:"required_fields"`
	TaxRatioUpper  float64  `yaml:"tax_ratio_upper"`
	TaxRatioLower  float64  `yaml:"tax_ratio_lower"`
	MealLimit      float64  `yaml:"meal_limit"`
	WindowDays     int      `yaml:"window_days"`
}

// DuplicateConfig holds duplicate detector settings.
type DuplicateConfig struct {
	Backend   string  `yaml:"backend"` // memory, valkey
	Dims      int     `yaml:"dims"`
	Threshold float64 `yaml:"threshold"`
	TopK      int     `yaml:"top_k"`
}

// BatchConfig holds batch operation sizing.
type BatchConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	MaxSize   int `yaml:"max_size"`
}

// KafkaConfig holds the ingest worker settings.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	GroupID      string   `yaml:"group_id"`
	DLQTopic     string   `yaml:"dlq_topic"`
	MaxRetries   int      `yaml:"max_retries"`
	BackoffMs    int      `yaml:"backoff_ms"`
	MaxBackoffMs int      `yaml:"max_backoff_ms"`
}

// LockConfig holds job lock settings. Empty Addr selects an in-process lock.
type LockConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	TTLSec   int    `yaml:"ttl_sec"`
}

// TracingConfig holds OpenTelemetry settings. Empty Endpoint exports to stdout.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	ServiceName string  `yaml:"service_name"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Duration helpers.

// RefreshInterval returns the rule index refresh period, 0 when disabled.
func (p PolicyConfig) RefreshInterval() time.Duration {
	return time.Duration(p.RefreshIntervalSec) * time.Second
}

// TTL returns the job lock TTL.
func (l LockConfig) TTL() time.Duration { return time.Duration(l.TTLSec) * time.Second }

// Backoff returns the base retry delay of the ingest worker.
func (k KafkaConfig) Backoff() time.Duration { return time.Duration(k.BackoffMs) * time.Millisecond }

// MaxBackoff caps the doubled retry delay.
func (k KafkaConfig) MaxBackoff() time.Duration { return time.Duration(k.MaxBackoffMs) * time.Millisecond }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

func orInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func orFloat(v *float64, def float64) {
	if *v <= 0 {
		*v = def
	}
}

func orString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	orInt(&c.HTTP.Port, 8080)
	orInt(&c.HTTP.ReadTimeoutSec, 10)
	orInt(&c.HTTP.WriteTimeoutSec, 30)
	orInt(&c.HTTP.ShutdownSec, 10)
	orInt(&c.HTTP.RetryAfterSec, 5)

	orString(&c.Database.Driver, "sqlite")
	if c.Database.Driver == "sqlite" {
		orString(&c.Database.DSN, "file:docreview.db?_foreign_keys=on")
	}
	orInt(&c.Database.MaxOpenConns, 20)
	orInt(&c.Database.MaxIdleConns, 5)
	orInt(&c.Database.ConnMaxLifetimeSec, 1800)
	orInt(&c.Database.SlowQueryMs, 500)

	orString(&c.Valkey.KeyPrefix, "docreview:")
	orInt(&c.Valkey.ReadinessTimeout, 10)

	orString(&c.Embedding.Provider, "hash")
	orInt(&c.Embedding.HashDims, 384)
	orInt(&c.Embedding.CacheTTLHours, 24*30)
	orString(&c.Embedding.OpenAI.Name, "openai")
	orString(&c.Embedding.OpenAI.Model, "text-embedding-3-small")
	orString(&c.Embedding.Budget.Action, "warn")

	orInt(&c.Policy.TopK, 8)
	orFloat(&c.Policy.HighOverCapRatio, 0.5)
	orFloat(&c.Policy.MinSimilarity, 0.35)
	orInt(&c.Policy.EmbedBatchSize, 64)

	orInt(&c.Anomaly.MinSamples, 5)
	orFloat(&c.Anomaly.Sigma, 2.5)
	orInt(&c.Anomaly.MADMinSamples, 8)
	orFloat(&c.Anomaly.MADThreshold, 3.5)
	if len(c.Anomaly.RequiredFields) == 0 {
		c.Anomaly.RequiredFields = []string{"vendor", "invoice_no", "issue_date", "amount"}
	}
	orFloat(&c.Anomaly.TaxRatioUpper, 0.17)
	orFloat(&c.Anomaly.MealLimit, 2000)
	orInt(&c.Anomaly.WindowDays, 180)

	orString(&c.Duplicate.Backend, "memory")
	orInt(&c.Duplicate.Dims, 256)
	orFloat(&c.Duplicate.Threshold, 0.92)
	orInt(&c.Duplicate.TopK, 10)

	orInt(&c.Batch.ChunkSize, 20)
	orInt(&c.Batch.MaxSize, 1000)

	orString(&c.Kafka.Topic, "documents.structured")
	orString(&c.Kafka.GroupID, "docreview-ingest")
	orString(&c.Kafka.DLQTopic, "documents.structured.dlq")
	orInt(&c.Kafka.MaxRetries, 5)
	orInt(&c.Kafka.BackoffMs, 500)
	orInt(&c.Kafka.MaxBackoffMs, 30000)

	orInt(&c.Lock.TTLSec, 300)

	orFloat(&c.Tracing.SampleRatio, 1)
	orString(&c.Tracing.ServiceName, "docreview")
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be \"postgres\" or \"sqlite\", got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Embedding.Provider {
	case "hash":
	case "openai":
		if c.Embedding.OpenAI.APIKey == "" {
			return fmt.Errorf("embedding.openai.api_key is required for provider openai")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"hash\" or \"openai\", got %q", c.Embedding.Provider)
	}
	switch c.Embedding.Budget.Action {
	case "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}
	switch c.Duplicate.Backend {
	case "memory":
	case "valkey":
		if len(c.Valkey.Addrs) == 0 {
			return fmt.Errorf("duplicate.backend valkey requires valkey.addrs")
		}
	default:
		return fmt.Errorf("duplicate.backend must be \"memory\" or \"valkey\", got %q", c.Duplicate.Backend)
	}
	if c.Duplicate.Threshold > 1 {
		return fmt.Errorf("duplicate.threshold must be within (0, 1], got %v", c.Duplicate.Threshold)
	}
	if c.Policy.MinSimilarity < 0 || c.Policy.MinSimilarity > 1 {
		return fmt.Errorf("policy.min_similarity must be within [0, 1], got %v", c.Policy.MinSimilarity)
	}
	if c.Policy.TopK > 50 {
		return fmt.Errorf("policy.top_k must not exceed 50, got %d", c.Policy.TopK)
	}
	if c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within (0, 1], got %v", c.Tracing.SampleRatio)
	}
	if c.Anomaly.TaxRatioLower >= c.Anomaly.TaxRatioUpper {
		return fmt.Errorf("anomaly.tax_ratio_lower must be below tax_ratio_upper")
	}
	if slices.Contains(c.Auth.APIKeys, "") {
		return fmt.Errorf("auth.api_keys must not contain empty keys")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
