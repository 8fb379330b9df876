package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/internal/service/filing"
)

type HealthHandler struct {
	service filing.FilingService
	now     func() time.Time
}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	TimeUTC string `json:"time_utc"`
	filing.HealthReport
}

func NewHealthHandler(service filing.FilingService) *HealthHandler {
	return &HealthHandler{service: service, now: time.Now}
}

// Healthz GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		OK:           true,
		TimeUTC:      h.now().UTC().Format(time.RFC3339Nano),
		HealthReport: h.service.Health(c.Request.Context()),
	})
}

// Health GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
