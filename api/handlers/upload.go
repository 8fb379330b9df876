package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/internal/utils/validator"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/storage"
)

// multipartOverhead allows for form boundaries and headers around the file.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	storage   storage.Storage
	validator *validator.DocumentValidator
	maxBytes  int64
	logger    logger.Logger
}

type UploadResponse struct {
	UploadID string             `json:"upload_id"`
	Key      string             `json:"key"`
	File     validator.FileInfo `json:"file"`
}

type UploadRejectedResponse struct {
	Detail string                      `json:"detail"`
	Errors []validator.ValidationError `json:"errors"`
}

func NewUploadHandler(store storage.Storage, v *validator.DocumentValidator, maxBytes int64, log logger.Logger) *UploadHandler {
	return &UploadHandler{
		storage:   store,
		validator: v,
		maxBytes:  maxBytes,
		logger:    log,
	}
}

// Upload POST /uploads, multipart field "file".
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.storage == nil || h.validator == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "uploads disabled"})
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Detail: "file too large"})
			return
		}
		badRequest(c, "multipart field \"file\" is required")
		return
	}

	f, err := header.Open()
	if err != nil {
		handleError(c, h.logger, "Failed to open upload", err)
		return
	}
	defer f.Close()

	result, err := h.validator.Validate(header.Filename, header.Size, f)
	if err != nil {
		handleError(c, h.logger, "Failed to validate upload", err)
		return
	}
	if !result.IsValid {
		c.AbortWithStatusJSON(http.StatusBadRequest, UploadRejectedResponse{
			Detail: result.Summary(),
			Errors: result.Errors,
		})
		return
	}

	uploadID, err := storage.NewUploadID()
	if err != nil {
		handleError(c, h.logger, "Failed to create upload id", err)
		return
	}

	key, err := h.storage.Store(c.Request.Context(), f, storage.UploadKey(uploadID, header.Filename))
	if err != nil {
		handleError(c, h.logger, "Failed to store upload", err)
		return
	}

	logger.NewContextLogger(h.logger).FromContext(c.Request.Context()).Info("Upload stored",
		logger.String("upload_id", uploadID),
		logger.String("key", key),
		logger.Int64("size", header.Size),
		logger.String("sha256", result.FileInfo.Hash),
	)

	c.JSON(http.StatusCreated, UploadResponse{
		UploadID: uploadID,
		Key:      key,
		File:     result.FileInfo,
	})
}
