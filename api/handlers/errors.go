package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps catalog errors onto HTTP. Anything unrecognised is a 500
// whose detail stays generic.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotReady):
		return http.StatusNotFound, "not ready"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrAlreadyExists), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	status, detail := statusFor(err)

	l := logger.NewContextLogger(log).FromContext(c.Request.Context())
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	switch {
	case status >= http.StatusInternalServerError:
		l.Error(message, fields...)
	case status == http.StatusNotFound:
		l.Debug(message, fields...)
	default:
		l.Warn(message, fields...)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail})
}

func badRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Detail: detail})
}
