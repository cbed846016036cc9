package operator

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	handlershared "github.com/payhub-next/internal/http/handlers/shared"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/queue"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListPayouts 分页查询打款批次
func (h *Handler) ListPayouts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	storeID, _ := strconv.ParseUint(c.Query("store_id"), 10, 64)

	batches, total, err := h.Orchestrator.ListPayouts(repository.PayoutListFilter{
		Page:     page,
		PageSize: pageSize,
		StoreID:  uint(storeID),
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询打款批次失败", err)
		return
	}
	response.SuccessWithPage(c, batches, handlershared.BuildPagination(page, pageSize, total))
}

// RetryPayout 人工重试失败批次
func (h *Handler) RetryPayout(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	batch, err := h.Orchestrator.RetryPayout(id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			respondError(c, http.StatusNotFound, "打款批次不存在", nil)
		case errors.Is(err, service.ErrPayoutInvalidStatus):
			respondError(c, http.StatusBadRequest, "仅失败批次可重试", nil)
		default:
			respondError(c, http.StatusInternalServerError, "重试打款失败", err)
		}
		return
	}
	requestLog(c).Infow("operator_payout_retry",
		"batch_id", batch.ID,
		"batch_no", batch.BatchNo,
		"operator_id", currentOperatorID(c),
	)
	// 重试后立即推送结算任务，不等周期扫描
	if err := h.QueueClient.EnqueuePayoutSettle(queue.PayoutSettlePayload{BatchID: batch.ID}); err != nil {
		requestLog(c).Warnw("operator_payout_retry_enqueue_failed", "batch_id", batch.ID, "error", err)
	}
	response.Success(c, batch)
}
