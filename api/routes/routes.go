package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/api/handlers"
	"github.com/feichai0017/ipo-quickread/api/middleware"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, corsOrigins []string, log logger.Logger) {
	cors, rejected := middleware.CORS(corsOrigins)
	if len(rejected) > 0 {
		log.Warn("Ignoring CORS origins without http(s) scheme", logger.Strings("origins", rejected))
	}

	// 全局中间件
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(cors)

	// 健康检查
	r.GET("/healthz", h.Health.Healthz)
	r.GET("/health", h.Health.Health)

	// 目录查询
	filings := r.Group("/filings")
	{
		filings.GET("", h.Filing.ListFilings)
		filings.GET("/:accession", h.Filing.GetFiling)
		filings.PATCH("/:accession/status", h.Filing.UpdateStatus)
	}

	// 登记
	r.POST("/ingest", h.Ingest.Ingest)
	r.POST("/ingest/batch", h.Ingest.IngestBatch)
	r.POST("/uploads", h.Upload.Upload)

	// 速读
	quickread := r.Group("/quickread")
	{
		quickread.GET("/:accession", h.QuickRead.GetQuickRead)
		quickread.PUT("/:accession", h.QuickRead.AttachQuickRead)
	}
}
