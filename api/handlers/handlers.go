package handlers

import (
	"github.com/feichai0017/ipo-quickread/internal/service/filing"
	"github.com/feichai0017/ipo-quickread/internal/utils/validator"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/storage"
)

type Handlers struct {
	Filing    *FilingHandler
	Ingest    *IngestHandler
	QuickRead *QuickReadHandler
	Upload    *UploadHandler
	Health    *HealthHandler
}

// NewHandlers wires every handler. store may be nil, which disables uploads.
func NewHandlers(
	filingService filing.FilingService,
	store storage.Storage,
	uploadValidator *validator.DocumentValidator,
	maxUploadBytes int64,
	log logger.Logger,
) *Handlers {
	log = log.Named("http")
	return &Handlers{
		Filing:    NewFilingHandler(filingService, log),
		Ingest:    NewIngestHandler(filingService, log),
		QuickRead: NewQuickReadHandler(filingService, log),
		Upload:    NewUploadHandler(store, uploadValidator, maxUploadBytes, log),
		Health:    NewHealthHandler(filingService),
	}
}
