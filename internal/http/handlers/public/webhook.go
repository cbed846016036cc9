package public

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/psp"
	"github.com/payhub-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ProviderWebhook PSP 回调入口，按路径参数路由到对应驱动验签
//
// 验签失败一律 401，未匹配到本地意向返回 404 让提供方重投，
// 处理成功返回 200 防止重复推送。
func (h *Handler) ProviderWebhook(c *gin.Context) {
	pspName := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	log := requestLog(c)

	driver, err := h.ResolvePSP(pspName)
	if err != nil {
		log.Warnw("webhook_unknown_provider", "psp", pspName)
		respondError(c, http.StatusNotFound, "不支持的支付提供方", nil)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warnw("webhook_body_read_failed", "psp", pspName, "error", err)
		respondError(c, http.StatusBadRequest, "请求体读取失败", err)
		return
	}
	log.Infow("webhook_received",
		"psp", pspName,
		"client_ip", c.ClientIP(),
		"body_size", len(body),
	)

	header := c.Request.Header
	err = h.Orchestrator.HandleWebhook(pspName, func() (*psp.WebhookEvent, error) {
		return driver.VerifyWebhook(header, body)
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookSignature):
			log.Warnw("webhook_signature_invalid", "psp", pspName, "client_ip", c.ClientIP())
			respondError(c, http.StatusUnauthorized, "签名校验失败", nil)
		case errors.Is(err, service.ErrWebhookUnmatched):
			log.Warnw("webhook_unmatched_reference", "psp", pspName)
			respondError(c, http.StatusNotFound, "未匹配到支付意向", nil)
		default:
			log.Errorw("webhook_handle_failed", "psp", pspName, "error", err)
			respondError(c, http.StatusInternalServerError, "回调处理失败", err)
		}
		return
	}
	response.Success(c, nil)
}
