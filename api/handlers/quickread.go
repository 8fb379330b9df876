package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/service/filing"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

type QuickReadHandler struct {
	service filing.FilingService
	logger  logger.Logger
}

type AttachResponse struct {
	Filing   FilingResponse `json:"filing"`
	Warnings []string       `json:"warnings"`
}

func NewQuickReadHandler(service filing.FilingService, logger logger.Logger) *QuickReadHandler {
	return &QuickReadHandler{
		service: service,
		logger:  logger,
	}
}

// GetQuickRead GET /quickread/:accession
func (h *QuickReadHandler) GetQuickRead(c *gin.Context) {
	doc, err := h.service.GetQuickRead(c.Request.Context(), c.Param("accession"))
	if err != nil {
		handleError(c, h.logger, "Quick-read unavailable", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// AttachQuickRead PUT /quickread/:accession
func (h *QuickReadHandler) AttachQuickRead(c *gin.Context) {
	var doc models.QuickRead
	if err := c.ShouldBindJSON(&doc); err != nil {
		badRequest(c, "invalid quick-read document")
		return
	}

	res, err := h.service.AttachQuickRead(c.Request.Context(), c.Param("accession"), &doc)
	if err != nil {
		handleError(c, h.logger, "Failed to attach quick-read", err)
		return
	}

	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	c.JSON(http.StatusCreated, AttachResponse{
		Filing:   NewFilingResponse(res.Filing),
		Warnings: warnings,
	})
}
