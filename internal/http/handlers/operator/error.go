package operator

import (
	handlershared "github.com/payhub-next/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}
