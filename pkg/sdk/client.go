package sdk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kailas-cloud/docreview/internal/app"
	"github.com/kailas-cloud/docreview/internal/config"
	"github.com/kailas-cloud/docreview/internal/db/sqldb"
	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docreview/internal/usecase/health"
	reviewuc "github.com/kailas-cloud/docreview/internal/usecase/review"
)

// Внутренние интерфейсы для подмены в тестах.
type documentUseCase interface {
	Ingest(ctx context.Context, sd documentuc.StructuredDocument) (domdoc.Document, error)
	Get(ctx context.Context, id string) (documentuc.Detail, error)
	List(ctx context.Context, q domdoc.Query) (domdoc.Page, error)
	Forget(ctx context.Context, id, reason string) error
}

type assessor interface {
	Assess(ctx context.Context, id string) (domdoc.Document, error)
}

type batchUseCase interface {
	Reassess(ctx context.Context, ids []string) ([]dombatch.Result, error)
}

type reviewUseCase interface {
	RequestInfo(ctx context.Context, cmd reviewuc.RequestInfoCmd) (domdoc.Document, error)
	Approve(ctx context.Context, cmd reviewuc.ApproveCmd) (domdoc.Document, error)
	Reject(ctx context.Context, cmd reviewuc.RejectCmd) (domdoc.Document, error)
	UpdateFields(ctx context.Context, cmd reviewuc.UpdateFieldsCmd) (domdoc.Document, error)
	BatchApprove(ctx context.Context, ids []string, reviewerID, comment string) ([]dombatch.Result, error)
}

type ruleUseCase interface {
	Save(ctx context.Context, in domrule.Input) (domrule.Rule, error)
	Get(ctx context.Context, id string) (domrule.Rule, error)
	List(ctx context.Context, q domrule.ListQuery) (domrule.Page, error)
	Delete(ctx context.Context, ids []string) (int, error)
	RefreshIndex(ctx context.Context) (int, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the SDK entry point. It is safe for concurrent use.
type Client struct {
	docSvc    documentUseCase
	assessSvc assessor
	batchSvc  batchUseCase
	reviewSvc reviewUseCase
	ruleSvc   ruleUseCase
	healthSvc healthUseCase
	obs       *observer

	close func() error
}

// New opens the database, migrates it, seeds rules and builds the rule index.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}

	obs, err := newObserver(cc.logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	cfg := config.Config{}
	cfg.Database.Driver = cc.driver
	cfg.Database.DSN = cc.dsn
	cfg.Embedding.HashDims = cc.hashDims
	cfg.Duplicate.Threshold = cc.dupThreshold
	cfg.Policy.HighOverCapRatio = cc.highOverCap
	cfg.Policy.SeedPath = cc.seedPath
	cfg.Batch.MaxSize = cc.maxBatchSize
	cfg.ApplyDefaults()

	var appOpts app.Options
	var owned *gorm.DB
	if cc.driver == "" {
		owned, err = sqldb.OpenMemory(ctx)
		if err != nil {
			return nil, fmt.Errorf("sdk: open memory database: %w", err)
		}
		appOpts.DB = owned
	}
	if cc.embedder != nil {
		appOpts.Embedder = adaptEmbedder(cc.embedder)
	}

	a, err := app.New(ctx, cfg, zap.NewNop(), appOpts)
	if err == nil {
		err = a.Start(ctx)
	}
	closeAll := func() error {
		var errs []error
		if a != nil {
			errs = append(errs, a.Close())
		}
		if owned != nil {
			errs = append(errs, sqldb.Close(owned))
		}
		return errors.Join(errs...)
	}
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("sdk: %w", err)
	}

	return &Client{
		docSvc:    a.Documents,
		assessSvc: a.Risk,
		batchSvc:  a.Batch,
		reviewSvc: a.Reviews,
		ruleSvc:   a.Rules,
		healthSvc: a.Health,
		obs:       obs,
		close:     closeAll,
	}, nil
}

// Close releases the database.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	err := c.close()
	c.close = nil
	return err
}

// Ping checks that every required component is reachable.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	report := c.healthSvc.Check(ctx)
	if report.Status == healthuc.Unhealthy {
		return fmt.Errorf("ping: unhealthy: %v", report.Checks)
	}
	return nil
}

// Documents returns the document service.
func (c *Client) Documents() *DocumentService {
	return &DocumentService{docSvc: c.docSvc, assessSvc: c.assessSvc, batchSvc: c.batchSvc, obs: c.obs}
}

// Reviews returns the review state machine.
func (c *Client) Reviews() *ReviewService {
	return &ReviewService{svc: c.reviewSvc, obs: c.obs}
}

// Rules returns the rule store.
func (c *Client) Rules() *RuleService {
	return &RuleService{svc: c.ruleSvc, obs: c.obs}
}
