package public

import (
	handlershared "github.com/payhub-next/internal/http/handlers/shared"
	"github.com/payhub-next/internal/provider"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 对外接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建对外处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}
