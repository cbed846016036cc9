package operator

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	handlershared "github.com/payhub-next/internal/http/handlers/shared"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetIntent 查询支付意向详情
func (h *Handler) GetIntent(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	intent, err := h.Orchestrator.GetIntent(id)
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

// ListIntents 分页查询支付意向
func (h *Handler) ListIntents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	storeID, _ := strconv.ParseUint(c.Query("store_id"), 10, 64)

	intents, total, err := h.Orchestrator.ListIntents(repository.IntentListFilter{
		Page:     page,
		PageSize: pageSize,
		StoreID:  uint(storeID),
		Status:   strings.TrimSpace(c.Query("status")),
		PSPName:  strings.TrimSpace(c.Query("psp")),
		IntentNo: strings.TrimSpace(c.Query("intent_no")),
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询支付意向失败", err)
		return
	}
	response.SuccessWithPage(c, intents, handlershared.BuildPagination(page, pageSize, total))
}

// CreateRefundRequest 发起退款请求
type CreateRefundRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

var refundErrorRules = []handlershared.MappedHandlerError{
	{Target: service.ErrIntentNotFound, Code: http.StatusNotFound, Msg: "支付意向不存在"},
	{Target: service.ErrRefundInvalidStatus, Code: http.StatusBadRequest, Msg: "当前状态不可退款"},
	{Target: service.ErrRefundInvalidAmount, Code: http.StatusBadRequest, Msg: "退款金额不合法"},
	{Target: service.ErrRefundExceedsAmount, Code: http.StatusBadRequest, Msg: "退款金额超过剩余可退金额"},
	{Target: service.ErrIdempotencyConflict, Code: http.StatusConflict, Msg: "幂等键冲突"},
	{Target: service.ErrRefundProviderFailed, Code: http.StatusBadGateway, Msg: "支付提供方退款失败"},
}

// CreateRefund 对支付意向发起退款
func (h *Handler) CreateRefund(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey == "" {
		respondError(c, http.StatusBadRequest, "缺少 Idempotency-Key 请求头", nil)
		return
	}
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误", err)
		return
	}
	operatorID := currentOperatorID(c)

	snapshot, err := h.Orchestrator.Refund(c.Request.Context(), id, service.RefundInput{
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey,
	}, operatorID)
	if err != nil {
		requestLog(c).Warnw("operator_refund_failed",
			"intent_id", id,
			"amount", req.Amount,
			"operator_id", operatorID,
			"error", err,
		)
		handlershared.RespondWithMappedError(c, err, refundErrorRules, http.StatusInternalServerError, "退款失败")
		return
	}
	response.Success(c, snapshot)
}

// ListRefunds 查询意向的退款记录
func (h *Handler) ListRefunds(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	refunds, err := h.Orchestrator.ListRefunds(id)
	if err != nil {
		if errors.Is(err, service.ErrIntentNotFound) {
			respondError(c, http.StatusNotFound, "支付意向不存在", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "查询退款记录失败", err)
		return
	}
	response.Success(c, refunds)
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "路径参数不合法", nil)
		return 0, false
	}
	return uint(id), true
}

func currentOperatorID(c *gin.Context) uint {
	value, ok := c.Get("operator_id")
	if !ok {
		return 0
	}
	if id, ok := value.(uint); ok {
		return id
	}
	return 0
}
