package filing

import (
	"context"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store"
)

// FilingService is the catalog: ingestion, queries, lifecycle and quick-read documents.
type FilingService interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
	IngestBatch(ctx context.Context, reqs []IngestRequest) []BatchItem
	Query(ctx context.Context, params QueryParams) ([]models.Filing, error)
	GetFiling(ctx context.Context, accession string) (*models.Filing, error)
	UpdateStatus(ctx context.Context, accession string, from *models.Status, to models.Status) (*models.Filing, error)
	GetQuickRead(ctx context.Context, accession string) (*models.QuickRead, error)
	AttachQuickRead(ctx context.Context, accession string, doc *models.QuickRead) (*AttachResult, error)
	Health(ctx context.Context) HealthReport
	Close() error
}

// IngestRequest identifies a filing by accession, source URL or upload id.
// The descriptive fields are only used when a new record is created.
type IngestRequest struct {
	Accession string
	SourceURL string
	UploadID  string
	CIK       string

	Form          string
	CompanyName   string
	FilingDate    *models.Date
	FilingURL     string
	DocPrimaryURL string
}

// IngestResult reports what an accepted ingest did.
type IngestResult struct {
	RequestID string `json:"request_id"`
	Accession string `json:"accession,omitempty"`
	// Created is false when the accession was already cataloged.
	Created bool `json:"created"`
	// Deferred means no record exists yet; the pipeline creates it once it learns the accession.
	Deferred  bool `json:"deferred"`
	HandedOff bool `json:"handed_off"`
}

// BatchItem is the outcome of one IngestBatch entry.
type BatchItem struct {
	Index  int
	Result *IngestResult
	Err    error
}

// QueryParams are the caller-facing filters. SinceDays <= 0 disables the date filter.
type QueryParams struct {
	Forms     []string
	SinceDays int
	Statuses  []models.Status
	Limit     int
}

type AttachResult struct {
	Filing *models.Filing
	// Warnings are advisory lint findings; they are logged and never stored.
	Warnings []string
}

type HealthReport struct {
	DB    store.Kind `json:"db"`
	Queue string     `json:"queue"`
	Cache string     `json:"cache"`
}

// Component states reported by Health.
const (
	ComponentOK          = "ok"
	ComponentDisabled    = "disabled"
	ComponentUnavailable = "unavailable"
)
