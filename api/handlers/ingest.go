package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/service/filing"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

// MaxBatchSize bounds POST /ingest/batch.
const MaxBatchSize = 100

type IngestHandler struct {
	service filing.FilingService
	logger  logger.Logger
}

// IngestRequest accepts query parameters, a JSON body, or both; body fields win.
type IngestRequest struct {
	Accession     string `form:"accession" json:"accession"`
	SecURL        string `form:"sec_url" json:"sec_url"`
	UploadID      string `form:"upload_id" json:"upload_id"`
	CIK           string `form:"cik" json:"cik"`
	Form          string `form:"form" json:"form"`
	CompanyName   string `form:"company_name" json:"company_name"`
	FilingDate    string `form:"filing_date" json:"filing_date"`
	FilingURL     string `form:"filing_url" json:"filing_url"`
	DocPrimaryURL string `form:"doc_primary_url" json:"doc_primary_url"`
}

type IngestResponse struct {
	Message string `json:"message"`
	*filing.IngestResult
}

type BatchItemResponse struct {
	Index  int    `json:"index"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	*filing.IngestResult
}

type BatchResponse struct {
	Message string              `json:"message"`
	Results []BatchItemResponse `json:"results"`
}

func NewIngestHandler(service filing.FilingService, logger logger.Logger) *IngestHandler {
	return &IngestHandler{
		service: service,
		logger:  logger,
	}
}

// Ingest POST /ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if c.Request.ContentLength != 0 && strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "invalid JSON body")
			return
		}
	}

	in, err := req.toService()
	if err != nil {
		handleError(c, h.logger, "Invalid ingest request", err)
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), in)
	if err != nil {
		handleError(c, h.logger, "Failed to ingest filing", err)
		return
	}

	c.JSON(http.StatusAccepted, IngestResponse{Message: "accepted", IngestResult: result})
}

// IngestBatch POST /ingest/batch with a JSON array of ingest requests.
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var reqs []IngestRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		badRequest(c, "body must be a JSON array of ingest requests")
		return
	}
	if len(reqs) == 0 || len(reqs) > MaxBatchSize {
		badRequest(c, fmt.Sprintf("batch must hold 1 to %d requests", MaxBatchSize))
		return
	}

	results := make([]BatchItemResponse, len(reqs))
	var valid []filing.IngestRequest
	var positions []int
	for i, r := range reqs {
		in, err := r.toService()
		if err != nil {
			status, detail := statusFor(err)
			results[i] = BatchItemResponse{Index: i, Status: status, Detail: detail}
			continue
		}
		valid = append(valid, in)
		positions = append(positions, i)
	}

	for _, item := range h.service.IngestBatch(c.Request.Context(), valid) {
		i := positions[item.Index]
		if item.Err != nil {
			status, detail := statusFor(item.Err)
			if status >= http.StatusInternalServerError {
				h.logger.Error("Batch ingest item failed", logger.Int("index", i), logger.Error(item.Err))
			}
			results[i] = BatchItemResponse{Index: i, Status: status, Detail: detail}
			continue
		}
		results[i] = BatchItemResponse{Index: i, Status: http.StatusAccepted, IngestResult: item.Result}
	}

	c.JSON(http.StatusAccepted, BatchResponse{Message: "accepted", Results: results})
}

func (r IngestRequest) toService() (filing.IngestRequest, error) {
	in := filing.IngestRequest{
		Accession:     r.Accession,
		SourceURL:     r.SecURL,
		UploadID:      r.UploadID,
		CIK:           r.CIK,
		Form:          strings.TrimSpace(r.Form),
		CompanyName:   strings.TrimSpace(r.CompanyName),
		FilingURL:     strings.TrimSpace(r.FilingURL),
		DocPrimaryURL: strings.TrimSpace(r.DocPrimaryURL),
	}
	if strings.TrimSpace(r.FilingDate) != "" {
		d, err := models.ParseDate(r.FilingDate)
		if err != nil {
			return in, err
		}
		in.FilingDate = &d
	}
	return in, nil
}
