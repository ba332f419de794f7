// Package app is the composition root shared by the API server, the ingest worker
// and the embedded SDK client.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kailas-cloud/docreview/internal/config"
	dbRedis "github.com/kailas-cloud/docreview/internal/db/redis"
	"github.com/kailas-cloud/docreview/internal/db/sqldb"
	"github.com/kailas-cloud/docreview/internal/domain"
	"github.com/kailas-cloud/docreview/internal/metrics"
	auditrepo "github.com/kailas-cloud/docreview/internal/repository/audit"
	budgetrepo "github.com/kailas-cloud/docreview/internal/repository/budget"
	documentrepo "github.com/kailas-cloud/docreview/internal/repository/document"
	"github.com/kailas-cloud/docreview/internal/repository/embcache"
	fingerprintrepo "github.com/kailas-cloud/docreview/internal/repository/fingerprint"
	"github.com/kailas-cloud/docreview/internal/repository/joblock"
	rulerepo "github.com/kailas-cloud/docreview/internal/repository/rule"
	openaiEmb "github.com/kailas-cloud/docreview/internal/transport/openai"
	anomalyuc "github.com/kailas-cloud/docreview/internal/usecase/anomaly"
	audituc "github.com/kailas-cloud/docreview/internal/usecase/audit"
	batchuc "github.com/kailas-cloud/docreview/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
	duplicateuc "github.com/kailas-cloud/docreview/internal/usecase/duplicate"
	embeddinguc "github.com/kailas-cloud/docreview/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/docreview/internal/usecase/health"
	policyuc "github.com/kailas-cloud/docreview/internal/usecase/policy"
	reviewuc "github.com/kailas-cloud/docreview/internal/usecase/review"
	riskuc "github.com/kailas-cloud/docreview/internal/usecase/risk"
	ruleuc "github.com/kailas-cloud/docreview/internal/usecase/rule"
	usageuc "github.com/kailas-cloud/docreview/internal/usecase/usage"
)

// Budget counter TTLs outlive their window so a late read still sees the total.
const (
	dailyCounterTTL   = 48 * time.Hour
	monthlyCounterTTL = 62 * 24 * time.Hour
)

// Options override parts of the configuration. Zero values keep the configured behaviour.
type Options struct {
	// DB is an already opened database. The caller keeps ownership.
	DB *gorm.DB
	// Embedder replaces the configured provider chain (no cache, no quota).
	Embedder domain.Embedder
}

// App holds the wired services.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Valkey *dbRedis.Store

	Documents  *documentuc.Service
	Reviews    *reviewuc.Service
	Risk       *riskuc.Service
	Batch      *batchuc.Service
	Audit      *audituc.Service
	Rules      *ruleuc.Service
	Duplicates *duplicateuc.Service
	Usage      *usageuc.Service
	Health     *healthuc.Service

	logger  *zap.Logger
	closers []func() error
}

// New connects the stores, migrates the schema and wires every use case.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Valkey.KeyPrefix != "" {
		domain.KeyPrefix = cfg.Valkey.KeyPrefix
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.openSQL(ctx, opts.DB); err != nil {
		return nil, err
	}
	if err := a.openValkey(ctx); err != nil {
		return nil, err
	}
	locker, err := a.openLock(ctx)
	if err != nil {
		return nil, err
	}

	audits := auditrepo.New(a.DB)
	documents := documentrepo.New(a.DB, audits)
	rules := rulerepo.New(a.DB)
	for _, m := range []interface{ Migrate(context.Context) error }{audits, documents, rules} {
		if err := m.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	quota := a.quota(ctx)
	ruleEmb, queryEmb := opts.Embedder, opts.Embedder
	if opts.Embedder == nil {
		ruleEmb, queryEmb = a.embedders(quota)
	}

	fpIndex, err := a.fingerprintIndex(ctx)
	if err != nil {
		return nil, err
	}

	index := ruleuc.NewIndex()
	a.Rules = ruleuc.New(rules, index, ruleEmb, locker, logger.Named("rules")).
		WithEmbedBatchSize(cfg.Policy.EmbedBatchSize)
	policy := policyuc.New(index, queryEmb).
		WithTopK(cfg.Policy.TopK).
		WithMinSimilarity(cfg.Policy.MinSimilarity).
		WithHighOverCapRatio(decimal.NewFromFloat(cfg.Policy.HighOverCapRatio))
	anomaly := anomalyuc.New(documents, anomalyConfig(cfg.Anomaly))
	a.Duplicates = duplicateuc.New(fpIndex, documents, duplicateuc.Config{
		Dims:      cfg.Duplicate.Dims,
		Threshold: cfg.Duplicate.Threshold,
		TopK:      cfg.Duplicate.TopK,
	}, logger.Named("duplicate"))
	a.Risk = riskuc.New(documents, policy, anomaly, a.Duplicates, logger.Named("risk"))
	a.Audit = audituc.New(audits)
	a.Documents = documentuc.New(documents, a.Risk, a.Duplicates, a.Audit, logger.Named("documents"))
	a.Reviews = reviewuc.New(documents, a.Risk, logger.Named("review"))
	a.Batch = batchuc.New(documents, a.Risk, locker, logger.Named("batch")).
		WithChunkSize(cfg.Batch.ChunkSize).
		WithMaxBatchSize(cfg.Batch.MaxSize)

	provider := "hash"
	if cfg.Embedding.Provider == "openai" {
		provider = cfg.Embedding.OpenAI.Name
	}
	var quotaReader usageuc.QuotaReader
	if quota != nil {
		quotaReader = quota
	}
	a.Usage = usageuc.New(quotaReader, provider, cfg.Embedding.Budget.CostPerMillionTokens)

	a.Health = healthuc.New().Require("database", sqldb.Pinger{DB: a.DB})
	if a.Valkey != nil {
		if cfg.Duplicate.Backend == "valkey" {
			a.Health.Require("valkey", a.Valkey)
		} else {
			a.Health.Optional("valkey", a.Valkey)
		}
	}
	if hc, ok := ruleEmb.(domain.HealthChecker); ok && cfg.Embedding.Provider == "openai" {
		a.Health.Optional("embedding", healthuc.ProbeFunc(hc.HealthCheck))
	}
	a.Health.Optional("rule_index", healthuc.ProbeFunc(func(context.Context) error {
		if !a.Rules.IsIndexBuilt() {
			return domain.NewIndexUnavailable("rules", "index not built", nil)
		}
		return nil
	}))
	return a, nil
}

// Start seeds rules, builds the rule index, loads the duplicate index and
// assesses documents left unassessed by an earlier outage.
// An index build failure is logged: policy evaluation reports the index unavailable until
// the background refresher succeeds.
func (a *App) Start(ctx context.Context) error {
	if path := a.Config.Policy.SeedPath; path != "" {
		n, err := a.Rules.Seed(ctx, path)
		if err != nil {
			return fmt.Errorf("seed rules: %w", err)
		}
		if n > 0 {
			a.logger.Info("Rules seeded", zap.Int("created", n), zap.String("path", path))
		}
	}
	if n, err := a.Rules.RefreshIndex(ctx); err != nil {
		a.logger.Error("Initial rule index build failed", zap.Error(err))
	} else {
		a.logger.Info("Rule index built", zap.Int("rules", n))
	}
	if a.Config.Duplicate.Backend == "memory" {
		n, err := a.Duplicates.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("load fingerprints: %w", err)
		}
		a.logger.Info("Fingerprint index loaded", zap.Int("documents", n))
	}
	if a.Rules.IsIndexBuilt() {
		// Documents ingested while the index was down are still waiting for a verdict.
		if _, err := a.Batch.BackfillUnassessed(ctx, 0); err != nil {
			a.logger.Warn("Backfill of unassessed documents failed", zap.Error(err))
		}
	}
	return nil
}

// RunBackground runs the periodic rule index refresher until ctx is done.
func (a *App) RunBackground(ctx context.Context) {
	a.Rules.RunRefresher(ctx, a.Config.Policy.RefreshInterval())
}

// Close releases every connection opened by New, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openSQL(ctx context.Context, shared *gorm.DB) error {
	if shared != nil {
		a.DB = shared
		return nil
	}
	c := a.Config.Database
	gdb, err := sqldb.Open(ctx, sqldb.Config{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.ConnMaxLifetimeSec) * time.Second,
		SlowThreshold:   time.Duration(c.SlowQueryMs) * time.Millisecond,
		Tracing:         a.Config.Tracing.Enabled,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.DB = gdb
	a.closers = append(a.closers, func() error { return sqldb.Close(gdb) })
	a.logger.Info("Connected to database", zap.String("driver", c.Driver))
	return nil
}

func (a *App) openValkey(ctx context.Context) error {
	c := a.Config.Valkey
	if len(c.Addrs) == 0 {
		return nil
	}
	store, err := dbRedis.NewStore(dbRedis.Config{Addrs: c.Addrs, Password: c.Password, ClientName: c.ClientName})
	if err != nil {
		return fmt.Errorf("create valkey store: %w", err)
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	if err := store.WaitForReady(ctx, time.Duration(c.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("valkey not ready: %w", err)
	}
	a.Valkey = store
	a.logger.Info("Connected to valkey", zap.Strings("addrs", c.Addrs))
	return nil
}

type locker interface {
	Acquire(ctx context.Context, name string) (func(context.Context), error)
}

func (a *App) openLock(ctx context.Context) (locker, error) {
	c := a.Config.Lock
	if c.Addr == "" {
		return joblock.NewLocal(), nil
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: c.Addr, Password: c.Password})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("lock server: %w", err)
	}
	return joblock.NewRedis(rdb, c.TTL(), a.logger.Named("joblock")), nil
}

// quota returns nil when no limit is configured.
func (a *App) quota(ctx context.Context) *embeddinguc.Quota {
	b := a.Config.Embedding.Budget
	if b.DailyTokenLimit <= 0 && b.MonthlyTokenLimit <= 0 {
		return nil
	}
	action := embeddinguc.QuotaWarn
	if b.Action == "reject" {
		action = embeddinguc.QuotaReject
	}
	provider := a.Config.Embedding.OpenAI.Name
	if a.Config.Embedding.Provider != "openai" {
		provider = "hash"
	}
	q := embeddinguc.NewQuota(provider, b.DailyTokenLimit, b.MonthlyTokenLimit, action, a.logger.Named("quota"))
	if a.Valkey != nil {
		q.WithStore(ctx, budgetrepo.New(a.Valkey, dailyCounterTTL, monthlyCounterTTL))
	}
	return q
}

// embedders builds the provider chain: provider -> cache -> metered -> instruction.
// Rules and document contexts get their own instruction prefix.
func (a *App) embedders(quota *embeddinguc.Quota) (rules, query domain.Embedder) {
	c := a.Config.Embedding
	// A nil *Quota must not reach the interface.
	var guard embeddinguc.QuotaGuard
	if quota != nil {
		guard = quota
	}

	if c.Provider != "openai" {
		var e domain.Embedder = embeddinguc.NewMetered(embeddinguc.NewHashEmbedder(c.HashDims), "hash", "hash", guard, a.logger)
		return e, e
	}

	o := c.OpenAI
	var base domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     o.APIKey,
		BaseURL:    o.BaseURL,
		Model:      o.Model,
		Dimensions: o.Dimensions,
		Provider:   o.Name,
		Logger:     a.logger.Named("openai"),
	})
	if a.Valkey != nil {
		ttl := time.Duration(c.CacheTTLHours) * time.Hour
		base = embcache.New(base, a.Valkey, o.Model, ttl, metrics.EmbeddingCacheTotal, a.logger)
	}
	metered := embeddinguc.NewMetered(base, o.Name, o.Model, guard, a.logger)

	return domain.WithInstruction(metered, o.DocumentInstruction), domain.WithInstruction(metered, o.QueryInstruction)
}

func (a *App) fingerprintIndex(ctx context.Context) (duplicateuc.Index, error) {
	if a.Config.Duplicate.Backend != "valkey" {
		return duplicateuc.NewMemoryIndex(), nil
	}
	repo := fingerprintrepo.New(a.Valkey, a.Config.Duplicate.Dims)
	if err := repo.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("fingerprint index: %w", err)
	}
	return repo, nil
}

func anomalyConfig(c config.AnomalyConfig) anomalyuc.Config {
	return anomalyuc.Config{
		MinSamples:     c.MinSamples,
		Sigma:          c.Sigma,
		MADMinSamples:  c.MADMinSamples,
		MADThreshold:   c.MADThreshold,
		RequiredFields: c.RequiredFields,
		TaxRatioUpper:  c.TaxRatioUpper,
		TaxRatioLower:  c.TaxRatioLower,
		MealLimit:      decimal.NewFromFloat(c.MealLimit),
		WindowDays:     c.WindowDays,
	}
}
