package public

import (
	"net/http"

	handlershared "github.com/payhub-next/internal/http/handlers/shared"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/psp"
	"github.com/payhub-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateIntentRequest 创建支付意向请求
type CreateIntentRequest struct {
	StoreID   uint   `json:"store_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Currency  string `json:"currency" binding:"required"`
	PSP       string `json:"psp" binding:"required"`
	ReturnURL string `json:"return_url"`
}

var createIntentErrorRules = []handlershared.MappedHandlerError{
	{Target: service.ErrIntentInvalidArg, Code: http.StatusBadRequest, Msg: "请求参数错误"},
	{Target: service.ErrStoreNotFound, Code: http.StatusNotFound, Msg: "店铺不存在"},
	{Target: service.ErrStoreInactive, Code: http.StatusBadRequest, Msg: "店铺已停用"},
	{Target: psp.ErrUnknownProvider, Code: http.StatusBadRequest, Msg: "不支持的支付提供方"},
	{Target: psp.ErrProviderRejected, Code: http.StatusBadRequest, Msg: "支付提供方拒绝授权"},
	{Target: psp.ErrProviderUnavailable, Code: http.StatusBadGateway, Msg: "支付提供方暂不可用"},
}

// CreateIntent 收单侧创建支付意向并发起授权
func (h *Handler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误", err)
		return
	}

	result, err := h.Orchestrator.CreateIntent(c.Request.Context(), service.CreateIntentInput{
		StoreID:   req.StoreID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		PSPName:   req.PSP,
		ReturnURL: req.ReturnURL,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		requestLog(c).Warnw("public_create_intent_failed",
			"store_id", req.StoreID,
			"amount", req.Amount,
			"psp", req.PSP,
			"error", err,
		)
		handlershared.RespondWithMappedError(c, err, createIntentErrorRules, http.StatusInternalServerError, "创建支付意向失败")
		return
	}
	response.Created(c, gin.H{
		"intent":       result.Intent,
		"redirect_url": result.RedirectURL,
	})
}

// GetIntentByNo 按单号查询支付意向（收单侧轮询用）
func (h *Handler) GetIntentByNo(c *gin.Context) {
	intentNo := c.Param("intent_no")
	intent, err := h.IntentRepo.GetByIntentNo(intentNo)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询支付意向失败", err)
		return
	}
	if intent == nil {
		respondError(c, http.StatusNotFound, "支付意向不存在", nil)
		return
	}
	response.Success(c, intent)
}
