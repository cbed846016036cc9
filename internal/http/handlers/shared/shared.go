package shared

import (
	"errors"

	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// MappedHandlerError 业务错误到接口错误响应的映射关系
type MappedHandlerError struct {
	Target error
	Code   int
	Msg    string
}

// RespondWithMappedError 按映射表返回业务错误，未命中的走兜底响应
func RespondWithMappedError(c *gin.Context, err error, rules []MappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Msg, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackMsg, err)
}

// NormalizePagination 归一化分页参数
func NormalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// BuildPagination 计算分页信息
func BuildPagination(page, pageSize int, total int64) response.Pagination {
	totalPage := total / int64(pageSize)
	if total%int64(pageSize) > 0 {
		totalPage++
	}
	return response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}
}
