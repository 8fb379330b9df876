package filing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/ipo-quickread/config"
	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store"
	"github.com/feichai0017/ipo-quickread/internal/store/backend"
	"github.com/feichai0017/ipo-quickread/pkg/cache"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/queue"
)

type FilingCatalog struct {
	store  store.FilingStore
	queue  queue.Queue
	cache  cache.Cache
	logger logger.Logger
	config *ServiceConfig
}

type ServiceConfig struct {
	// StoreTimeout bounds every store call on top of the caller's context.
	StoreTimeout time.Duration
	// BatchConcurrency caps parallel ingests in IngestBatch.
	BatchConcurrency int
	QueuePriority    int
	// Now is the service clock; date filters are relative to it.
	Now func() time.Time
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		StoreTimeout:     5 * time.Second,
		BatchConcurrency: 8,
		QueuePriority:    queue.PriorityDefault,
		Now:              time.Now,
	}
}

// NewService wires a catalog. q and c may be nil: no hand-off, no cache.
func NewService(
	s store.FilingStore,
	q queue.Queue,
	c cache.Cache,
	log logger.Logger,
	cfg *ServiceConfig,
) *FilingCatalog {
	def := DefaultServiceConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = def.BatchConcurrency
	}
	if cfg.QueuePriority == 0 {
		cfg.QueuePriority = def.QueuePriority
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	return &FilingCatalog{
		store:  s,
		queue:  q,
		cache:  c,
		logger: log.Named("filing"),
		config: cfg,
	}
}

// GetService builds the catalog from the process configuration.
func GetService(ctx context.Context, log logger.Logger) (*FilingCatalog, error) {
	appCfg := config.GetAppConfig()
	redisCfg := config.GetRedisConfig()

	// 初始化存储
	s, err := backend.Open(ctx, appCfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filing store: %w", err)
	}

	// 初始化队列
	var q queue.Queue
	if redisCfg.QueueEnabled {
		q, err = queue.NewAsynqQueue(queue.DefaultQueueConfig(redisCfg.Addr, redisCfg.Password, redisCfg.DB))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize queue: %w", err)
		}
	}

	// 初始化缓存
	var c cache.Cache
	if redisCfg.CacheEnabled {
		c, err = cache.NewRedisCache(&cache.RedisConfig{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			TTL:      appCfg.CacheTTL,
		})
		if err != nil {
			s.Close()
			if q != nil {
				q.Close()
			}
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
	}

	cfg := DefaultServiceConfig()
	cfg.StoreTimeout = appCfg.StoreTimeout

	return NewService(s, q, c, log, cfg), nil
}

// Store exposes the underlying store for fixture loading.
func (s *FilingCatalog) Store() store.FilingStore {
	return s.store
}

// Ingest 登记一份待处理的招股书
func (s *FilingCatalog) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	req.Accession = strings.TrimSpace(req.Accession)
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	req.UploadID = strings.TrimSpace(req.UploadID)
	req.CIK = strings.TrimSpace(req.CIK)

	if req.Accession == "" && req.SourceURL == "" && req.UploadID == "" {
		return nil, fmt.Errorf("%w: one of accession, sec_url or upload_id is required", models.ErrInvalidRequest)
	}
	if req.SourceURL != "" {
		if err := models.ValidateSourceURL(req.SourceURL); err != nil {
			return nil, err
		}
	}

	requestID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request id: %w", err)
	}
	result := &IngestResult{
		RequestID: requestID.String(),
		Accession: req.Accession,
	}

	log := s.logger.With(
		logger.String("request_id", result.RequestID),
		logger.String("accession", req.Accession),
	)

	if req.Accession == "" {
		result.Deferred = true
	} else {
		handOff, err := s.createForIngest(ctx, req, result)
		if err != nil {
			return nil, err
		}
		if !handOff {
			log.Info("Ingest for cataloged filing ignored")
			return result, nil
		}
	}

	result.HandedOff = s.handOff(ctx, log, req, result.RequestID)

	log.Info("Ingest accepted",
		logger.Bool("created", result.Created),
		logger.Bool("deferred", result.Deferred),
		logger.Bool("handed_off", result.HandedOff),
	)
	return result, nil
}

// createForIngest catalogs the accession. It reports whether the filing still
// needs handing to the pipeline, which is only while it sits in new.
func (s *FilingCatalog) createForIngest(ctx context.Context, req IngestRequest, result *IngestResult) (bool, error) {
	f := models.Filing{
		CIK:           req.CIK,
		CompanyName:   req.CompanyName,
		Form:          req.Form,
		Accession:     req.Accession,
		FilingDate:    req.FilingDate,
		FilingURL:     req.FilingURL,
		DocPrimaryURL: req.DocPrimaryURL,
	}
	if f.FilingURL == "" {
		f.FilingURL = req.SourceURL
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	_, err := s.store.Create(sctx, f)
	if err == nil {
		result.Created = true
		return true, nil
	}
	if !errors.Is(err, models.ErrAlreadyExists) {
		return false, fmt.Errorf("failed to create filing: %w", err)
	}

	existing, err := s.store.Get(sctx, req.Accession)
	if err != nil {
		return false, fmt.Errorf("failed to load existing filing: %w", err)
	}
	return existing.Status == models.StatusNew, nil
}

// handOff enqueues the pipeline task. Failures are logged only: the catalog
// record is the durable intent and the pipeline can poll for new filings.
func (s *FilingCatalog) handOff(ctx context.Context, log logger.Logger, req IngestRequest, requestID string) bool {
	if s.queue == nil {
		return false
	}

	taskID := req.Accession
	if taskID == "" {
		taskID = requestID
	}
	task, err := queue.NewTask(queue.TaskTypeFilingIngest, taskID, s.config.QueuePriority, queue.IngestPayload{
		RequestID: requestID,
		Accession: req.Accession,
		SourceURL: req.SourceURL,
		UploadID:  req.UploadID,
		CIK:       req.CIK,
	})
	if err != nil {
		log.Error("Failed to build ingest task", logger.Error(err))
		return false
	}
	task.Metadata["request_id"] = requestID

	if err := s.queue.Enqueue(ctx, task); err != nil {
		log.Error("Failed to enqueue ingest task", logger.Error(err))
		return false
	}
	return true
}

// IngestBatch 批量登记; each entry succeeds or fails on its own.
func (s *FilingCatalog) IngestBatch(ctx context.Context, reqs []IngestRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.config.BatchConcurrency)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			result, err := s.Ingest(ctx, req)
			items[i] = BatchItem{Index: i, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Query 按条件查询目录
func (s *FilingCatalog) Query(ctx context.Context, params QueryParams) ([]models.Filing, error) {
	q := models.FilingQuery{
		Statuses: params.Statuses,
		Limit:    models.ClampLimit(params.Limit),
	}
	for _, form := range params.Forms {
		if form = strings.TrimSpace(form); form != "" {
			q.Forms = append(q.Forms, form)
		}
	}
	if params.SinceDays > 0 {
		since := models.NewDate(s.config.Now()).AddDays(-params.SinceDays)
		q.Since = &since
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	filings, err := s.store.List(sctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list filings: %w", err)
	}
	if filings == nil {
		filings = []models.Filing{}
	}
	return filings, nil
}

func (s *FilingCatalog) GetFiling(ctx context.Context, accession string) (*models.Filing, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.store.Get(sctx, strings.TrimSpace(accession))
}

// UpdateStatus moves a filing along its lifecycle. A nil from means "whatever
// it is now"; the store still applies the change as a compare-and-swap.
func (s *FilingCatalog) UpdateStatus(ctx context.Context, accession string, from *models.Status, to models.Status) (*models.Filing, error) {
	accession = strings.TrimSpace(accession)
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown target status", models.ErrInvalidRequest)
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	current := models.Status(0)
	if from != nil {
		current = *from
	} else {
		f, err := s.store.Get(sctx, accession)
		if err != nil {
			return nil, err
		}
		current = f.Status
	}

	f, err := s.store.UpdateStatus(sctx, accession, current, to)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Filing status changed",
		logger.String("accession", accession),
		logger.String("from", current.String()),
		logger.String("to", to.String()),
	)
	return f, nil
}

// GetQuickRead 获取速读文档. Unknown, unfinished and document-less filings all
// yield ErrNotReady.
func (s *FilingCatalog) GetQuickRead(ctx context.Context, accession string) (*models.QuickRead, error) {
	accession = strings.TrimSpace(accession)

	// ready is terminal and documents are immutable, so a cached copy never goes stale.
	if doc, ok := s.cachedQuickRead(ctx, accession); ok {
		return doc, nil
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	f, err := s.store.Get(sctx, accession)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotReady, accession)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load filing: %w", err)
	}
	if f.Status != models.StatusReady {
		return nil, fmt.Errorf("%w: %s is %s", models.ErrNotReady, accession, f.Status)
	}

	doc, err := s.store.GetDocument(sctx, accession)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s has no document", models.ErrNotReady, accession)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quick-read: %w", err)
	}

	s.cacheQuickRead(ctx, accession, doc)
	return doc, nil
}

// AttachQuickRead validates and stores the extraction result for a filing.
func (s *FilingCatalog) AttachQuickRead(ctx context.Context, accession string, doc *models.QuickRead) (*AttachResult, error) {
	accession = strings.TrimSpace(accession)
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", models.ErrInvalidRequest)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	warnings := doc.Lint()
	for _, w := range warnings {
		s.logger.Warn("Quick-read lint",
			logger.String("accession", accession),
			logger.String("issue", w),
		)
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	f, err := s.store.AttachDocument(sctx, accession, doc)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quick-read attached",
		logger.String("accession", accession),
		logger.Int("extraction_score", doc.Meta.ExtractionScore),
		logger.Int("warnings", len(warnings)),
	)

	if f.Status == models.StatusReady {
		s.cacheQuickRead(ctx, accession, doc)
	}
	return &AttachResult{Filing: f, Warnings: warnings}, nil
}

func (s *FilingCatalog) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		DB:    s.store.Kind(),
		Queue: ComponentDisabled,
		Cache: ComponentDisabled,
	}

	pctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if s.queue != nil {
		report.Queue = componentState(s.queue.Ping(pctx))
	}
	if s.cache != nil {
		report.Cache = componentState(s.cache.Ping(pctx))
	}
	return report
}

func (s *FilingCatalog) Close() error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

func (s *FilingCatalog) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

func (s *FilingCatalog) cachedQuickRead(ctx context.Context, accession string) (*models.QuickRead, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, accession)
	if err != nil {
		s.logger.Warn("Quick-read cache read failed",
			logger.String("accession", accession),
			logger.Error(err),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var doc models.QuickRead
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("Dropping undecodable cached quick-read",
			logger.String("accession", accession),
			logger.Error(err),
		)
		return nil, false
	}
	return &doc, true
}

func (s *FilingCatalog) cacheQuickRead(ctx context.Context, accession string, doc *models.QuickRead) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, accession, data); err != nil {
		s.logger.Warn("Quick-read cache write failed",
			logger.String("accession", accession),
			logger.Error(err),
		)
	}
}

func componentState(err error) string {
	if err != nil {
		return ComponentUnavailable
	}
	return ComponentOK
}

var _ FilingService = (*FilingCatalog)(nil)
