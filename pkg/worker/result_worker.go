package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/service/filing"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/queue"
	"github.com/feichai0017/ipo-quickread/pkg/storage"
)

// maxDocumentBytes caps a quick-read document fetched from object storage.
const maxDocumentBytes = 8 << 20

// ResultWorker applies extraction pipeline results to the catalog.
type ResultWorker struct {
	BaseWorker
	filings filing.FilingService
	objects storage.Storage
}

func NewResultWorker(cfg *Config, filings filing.FilingService, objects storage.Storage, log logger.Logger) (*ResultWorker, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("worker: redis address is required")
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &ResultWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		filings: filings,
		objects: objects,
	}

	// 注册任务处理器
	w.registerHandlers()
	return w, nil
}

func (w *ResultWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeFilingStatus, w.handleFilingStatus)
	w.mux.HandleFunc(queue.TaskTypeQuickReadAttach, w.handleQuickReadAttach)
}

func (w *ResultWorker) handleFilingStatus(ctx context.Context, t *asynq.Task) error {
	task, err := queue.ParseTask(t)
	if err != nil {
		return w.reject(t, err)
	}
	var p queue.StatusPayload
	if err := task.Decode(&p); err != nil {
		return w.reject(t, err)
	}
	return w.ApplyStatus(ctx, p)
}

func (w *ResultWorker) handleQuickReadAttach(ctx context.Context, t *asynq.Task) error {
	task, err := queue.ParseTask(t)
	if err != nil {
		return w.reject(t, err)
	}
	var p queue.AttachPayload
	if err := task.Decode(&p); err != nil {
		return w.reject(t, err)
	}
	return w.ApplyAttach(ctx, p)
}

// ApplyStatus performs a filing:status result. A filing already at the target
// status counts as applied, so redelivery is harmless.
func (w *ResultWorker) ApplyStatus(ctx context.Context, p queue.StatusPayload) error {
	log := w.logger.With(logger.String("accession", p.Accession), logger.String("to", p.To))

	to, err := models.ParseStatus(p.To)
	if err != nil {
		return w.skip(log, "Invalid status task", err)
	}
	var from *models.Status
	if p.From != "" {
		st, err := models.ParseStatus(p.From)
		if err != nil {
			return w.skip(log, "Invalid status task", err)
		}
		from = &st
	}

	_, err = w.filings.UpdateStatus(ctx, p.Accession, from, to)
	switch {
	case err == nil:
		log.Info("Applied status result")
		return nil
	case errors.Is(err, models.ErrInvalidTransition):
		if f, getErr := w.filings.GetFiling(ctx, p.Accession); getErr == nil && f.Status == to {
			log.Info("Status result already applied")
			return nil
		}
		return w.skip(log, "Status result rejected", err)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidRequest):
		return w.skip(log, "Status result rejected", err)
	default:
		log.Error("Failed to apply status result", logger.Error(err))
		return err
	}
}

// ApplyAttach fetches the document named by a quickread:attach result and attaches it.
func (w *ResultWorker) ApplyAttach(ctx context.Context, p queue.AttachPayload) error {
	log := w.logger.With(logger.String("accession", p.Accession), logger.String("object_key", p.ObjectKey))

	if p.Accession == "" || p.ObjectKey == "" {
		return w.skip(log, "Invalid attach task", fmt.Errorf("%w: accession and object_key are required", models.ErrInvalidRequest))
	}
	if w.objects == nil {
		return w.skip(log, "Attach task without object storage", errors.New("object storage is not configured"))
	}

	// 重复投递时文档已存在
	if _, err := w.filings.GetQuickRead(ctx, p.Accession); err == nil {
		log.Info("Quick-read already attached")
		return nil
	}

	doc, err := w.fetchDocument(ctx, p.ObjectKey)
	if err != nil {
		log.Error("Failed to fetch quick-read document", logger.Error(err))
		return err
	}

	res, err := w.filings.AttachQuickRead(ctx, p.Accession, doc)
	switch {
	case err == nil:
		log.Info("Applied quick-read result", logger.Int("warnings", len(res.Warnings)))
		return nil
	case errors.Is(err, models.ErrAlreadyExists):
		log.Info("Quick-read already attached")
		return nil
	case errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrNotFound):
		return w.skip(log, "Quick-read result rejected", err)
	default:
		log.Error("Failed to attach quick-read", logger.Error(err))
		return err
	}
}

func (w *ResultWorker) fetchDocument(ctx context.Context, key string) (*models.QuickRead, error) {
	rc, err := w.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", asynq.SkipRetry, maxDocumentBytes)
	}

	var doc models.QuickRead
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode document: %v", asynq.SkipRetry, err)
	}
	return &doc, nil
}

// skip logs a permanent failure and stops asynq from retrying it.
func (w *ResultWorker) skip(log logger.Logger, msg string, err error) error {
	log.Warn(msg, logger.Error(err))
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}

func (w *ResultWorker) reject(t *asynq.Task, err error) error {
	w.logger.Error("Failed to decode task",
		logger.String("type", t.Type()),
		logger.String("payload", string(t.Payload())),
		logger.Error(err),
	)
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}

func (w *ResultWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()

	return nil
}
