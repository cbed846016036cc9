package operator

import (
	"net/http"
	"strconv"
	"strings"

	handlershared "github.com/payhub-next/internal/http/handlers/shared"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetStoreBalance 查询店铺余额
func (h *Handler) GetStoreBalance(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	store, err := h.StoreRepo.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询店铺失败", err)
		return
	}
	if store == nil {
		respondError(c, http.StatusNotFound, "店铺不存在", nil)
		return
	}
	balance, err := h.Orchestrator.Balance(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询余额失败", err)
		return
	}
	response.Success(c, balance)
}

// ListLedgerEntries 分页查询账簿分录
func (h *Handler) ListLedgerEntries(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	storeID, _ := strconv.ParseUint(c.Query("store_id"), 10, 64)
	intentID, _ := strconv.ParseUint(c.Query("intent_id"), 10, 64)

	entries, total, err := h.Orchestrator.ListLedgerEntries(repository.LedgerEntryListFilter{
		Page:      page,
		PageSize:  pageSize,
		StoreID:   uint(storeID),
		IntentID:  uint(intentID),
		EntryType: strings.TrimSpace(c.Query("entry_type")),
		Account:   strings.TrimSpace(c.Query("account")),
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询分录失败", err)
		return
	}
	response.SuccessWithPage(c, entries, handlershared.BuildPagination(page, pageSize, total))
}
