package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/service/filing"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

type FilingHandler struct {
	service filing.FilingService
	logger  logger.Logger
}

// FilingResponse is the wire form of a catalog record. Empty fields are null.
type FilingResponse struct {
	CIK           *string `json:"cik"`
	CompanyName   *string `json:"company_name"`
	Form          *string `json:"form"`
	Accession     *string `json:"accession"`
	FilingDate    *string `json:"filing_date"`
	FilingURL     *string `json:"filing_url"`
	DocPrimaryURL *string `json:"doc_primary_url"`
	Status        *string `json:"status"`
}

// StatusRequest moves a filing along its lifecycle. From is optional.
type StatusRequest struct {
	Status string `json:"status"`
	From   string `json:"from"`
}

func NewFilingHandler(service filing.FilingService, logger logger.Logger) *FilingHandler {
	return &FilingHandler{
		service: service,
		logger:  logger,
	}
}

func NewFilingResponse(f *models.Filing) FilingResponse {
	resp := FilingResponse{
		CIK:           nullable(f.CIK),
		CompanyName:   nullable(f.CompanyName),
		Form:          nullable(f.Form),
		Accession:     nullable(f.Accession),
		FilingURL:     nullable(f.FilingURL),
		DocPrimaryURL: nullable(f.DocPrimaryURL),
	}
	if f.FilingDate != nil {
		resp.FilingDate = nullable(f.FilingDate.String())
	}
	if f.Status.Valid() {
		resp.Status = nullable(f.Status.String())
	}
	return resp
}

// ListFilings GET /filings?form=S-1,F-1&days=30&status=new&limit=50
func (h *FilingHandler) ListFilings(c *gin.Context) {
	params, err := parseQueryParams(c)
	if err != nil {
		handleError(c, h.logger, "Invalid filing query", err)
		return
	}

	filings, err := h.service.Query(c.Request.Context(), params)
	if err != nil {
		handleError(c, h.logger, "Failed to query filings", err)
		return
	}

	resp := make([]FilingResponse, 0, len(filings))
	for i := range filings {
		resp = append(resp, NewFilingResponse(&filings[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// GetFiling GET /filings/:accession
func (h *FilingHandler) GetFiling(c *gin.Context) {
	f, err := h.service.GetFiling(c.Request.Context(), c.Param("accession"))
	if err != nil {
		handleError(c, h.logger, "Failed to get filing", err)
		return
	}
	c.JSON(http.StatusOK, NewFilingResponse(f))
}

// UpdateStatus PATCH /filings/:accession/status
func (h *FilingHandler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid status body")
		return
	}

	to, err := models.ParseStatus(req.Status)
	if err != nil {
		handleError(c, h.logger, "Invalid target status", err)
		return
	}

	var from *models.Status
	if strings.TrimSpace(req.From) != "" {
		st, err := models.ParseStatus(req.From)
		if err != nil {
			handleError(c, h.logger, "Invalid source status", err)
			return
		}
		from = &st
	}

	f, err := h.service.UpdateStatus(c.Request.Context(), c.Param("accession"), from, to)
	if err != nil {
		handleError(c, h.logger, "Failed to update filing status", err)
		return
	}
	c.JSON(http.StatusOK, NewFilingResponse(f))
}

func parseQueryParams(c *gin.Context) (filing.QueryParams, error) {
	params := filing.QueryParams{
		Forms: splitList(c.QueryArray("form")),
	}

	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return params, fmt.Errorf("%w: days must be an integer", models.ErrInvalidRequest)
		}
		params.SinceDays = days
	}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return params, fmt.Errorf("%w: limit must be an integer", models.ErrInvalidRequest)
		}
		params.Limit = limit
	}

	for _, s := range splitList(c.QueryArray("status")) {
		st, err := models.ParseStatus(s)
		if err != nil {
			return params, err
		}
		params.Statuses = append(params.Statuses, st)
	}

	return params, nil
}

// splitList flattens repeated and comma-separated values, dropping blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
