package api

import (
	"GeoCMS/backend/go/internal/conversation_service/service"
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/logger"
	"GeoCMS/backend/go/pkg/runlock"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusFor 把服务层错误映射为 HTTP 状态码和错误类型。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, service.ErrContentNotFound),
		errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidSlot):
		return http.StatusBadRequest, "invalid_slot"
	case errors.Is(err, service.ErrUnknownWorkflow):
		return http.StatusBadRequest, "unknown_workflow"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrRunNotActive), errors.Is(err, service.ErrTaskFinalized):
		return http.StatusConflict, "run_not_active"
	case errors.Is(err, service.ErrGenerationFailed), errors.Is(err, service.ErrVerificationFailed):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, runlock.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError 以 {"error": "..."} 返回错误并记录日志。
func respondError(c *gin.Context, runID string, err error) {
	code, kind := statusFor(err)
	log := logger.New(serviceName, requestID(c), runID).WithError(models.ErrorInfo{
		Message:    err.Error(),
		Type:       kind,
		StatusCode: code,
	})
	if code >= http.StatusInternalServerError {
		log.Error("请求处理失败")
	} else {
		log.Warn("请求被拒绝")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
