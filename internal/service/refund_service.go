package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/payhub-next/internal/cache"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/psp"
	"github.com/payhub-next/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefundService 退款子状态机
//
// 退款记录在调用 PSP 之前以 PENDING_CONFIRMATION 先行落库，避免
// PSP 成功而本地无记录的孤儿窗口。提供方侧以 RefundNo 作幂等令牌，
// 未知结果下的重试复用同一笔待确认记录，重放不会重复扣款。
type RefundService struct {
	refundRepo repository.RefundRepository
	intentRepo repository.IntentRepository
	ledgerRepo repository.LedgerRepository
	guard      *IdempotencyGuard
	resolvePSP PSPResolver
	pspTimeout time.Duration
}

// RefundInput 退款请求输入
type RefundInput struct {
	Amount         int64
	Reason         string
	IdempotencyKey string
}

// NewRefundService 创建退款服务
func NewRefundService(
	refundRepo repository.RefundRepository,
	intentRepo repository.IntentRepository,
	ledgerRepo repository.LedgerRepository,
	guard *IdempotencyGuard,
	resolvePSP PSPResolver,
	pspTimeoutSeconds int,
) *RefundService {
	if pspTimeoutSeconds <= 0 {
		pspTimeoutSeconds = 15
	}
	return &RefundService{
		refundRepo: refundRepo,
		intentRepo: intentRepo,
		ledgerRepo: ledgerRepo,
		guard:      guard,
		resolvePSP: resolvePSP,
		pspTimeout: time.Duration(pspTimeoutSeconds) * time.Second,
	}
}

// Refund 对支付意向发起退款
//
// 校验顺序：意向存在 → 状态可退 → 金额不超剩余 → 幂等申领 →
// PSP 退款 → 单事务终结。校验失败不产生任何副作用。
func (s *RefundService) Refund(ctx context.Context, intentID uint, input RefundInput, operatorID uint) (models.JSON, error) {
	intent, err := s.intentRepo.GetByID(intentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	if !intent.Refundable() {
		return nil, ErrRefundInvalidStatus
	}
	if input.Amount <= 0 {
		return nil, ErrRefundInvalidAmount
	}
	if input.Amount > intent.RemainingRefundable() {
		return nil, ErrRefundExceedsAmount
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, ErrRefundInvalidAmount
	}

	requestHash := HashRequest("refund", intentID, input.Amount)
	record, cached, err := s.guard.Begin(constants.IdempotencyOpRefund, key, requestHash)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		logger.Infow("refund_replayed",
			"intent_no", intent.IntentNo,
			"idempotency_key", key,
		)
		return cached, nil
	}

	refund, err := s.provisionalRefund(intent, input, operatorID, key)
	if err != nil {
		s.guard.Release(record)
		return nil, err
	}
	if refund.Status == constants.RefundStatusSucceeded {
		// 结果未知期间回调已确认成功，本次重试不再触发提供方调用
		response := refundSnapshot(refund)
		if err := s.guard.Complete(record, response); err != nil {
			return nil, err
		}
		logger.Infow("refund_replayed",
			"intent_no", intent.IntentNo,
			"refund_no", refund.RefundNo,
			"idempotency_key", key,
		)
		return response, nil
	}

	driver, err := s.resolvePSP(intent.PSPName)
	if err != nil {
		s.guard.Release(record)
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.pspTimeout)
	defer cancel()
	result, err := driver.Refund(callCtx, psp.RefundInput{
		ReferenceID: intent.PSPReferenceID,
		RefundNo:    refund.RefundNo,
		Amount:      refund.Amount,
		Currency:    intent.Currency,
		Reason:      refund.Reason,
	})
	if err != nil {
		s.guard.Release(record)
		if errors.Is(err, psp.ErrProviderRejected) {
			// 明确拒绝：退款终结为 FAILED
			refund.Status = constants.RefundStatusFailed
			refund.FailureReason = err.Error()
			if updateErr := s.refundRepo.Update(refund); updateErr != nil {
				return nil, updateErr
			}
		}
		// 超时或不可用：结果未知，记录停留在 PENDING_CONFIRMATION，
		// 重试或回调对账会接走它
		logger.Warnw("refund_provider_failed",
			"intent_no", intent.IntentNo,
			"refund_no", refund.RefundNo,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrRefundProviderFailed, err)
	}

	response, err := s.finalize(refund.ID, result.PSPRefundID, record)
	if err != nil {
		return nil, err
	}
	logger.Infow("refund_succeeded",
		"intent_no", intent.IntentNo,
		"refund_no", refund.RefundNo,
		"amount", refund.Amount,
		"psp_refund_id", result.PSPRefundID,
	)
	return response, nil
}

// provisionalRefund 取得本次请求的待确认退款记录，同键重试复用既有记录
func (s *RefundService) provisionalRefund(intent *models.PaymentIntent, input RefundInput, operatorID uint, key string) (*models.Refund, error) {
	existing, err := s.refundRepo.GetByIntentAndKey(intent.ID, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != constants.RefundStatusFailed {
		if existing.Amount != input.Amount {
			return nil, ErrIdempotencyConflict
		}
		// PENDING_CONFIRMATION：复用记录继续向提供方请求；
		// SUCCEEDED：回调已先行确认，由调用方按重放返回既有结果
		return existing, nil
	}
	refund := &models.Refund{
		RefundNo:       "rf_" + uuid.NewString(),
		IntentID:       intent.ID,
		StoreID:        intent.StoreID,
		Amount:         input.Amount,
		Status:         constants.RefundStatusPendingConfirmation,
		Reason:         strings.TrimSpace(input.Reason),
		OperatorID:     operatorID,
		IdempotencyKey: key,
	}
	if err := s.refundRepo.Create(refund); err != nil {
		return nil, err
	}
	return refund, nil
}

// finalize 单事务内终结退款：推进意向、写退款分录、完成幂等记录
func (s *RefundService) finalize(refundID uint, pspRefundID string, record *models.IdempotencyRecord) (models.JSON, error) {
	var response models.JSON
	var storeID uint
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		refund, err := refundRepo.GetByID(refundID)
		if err != nil {
			return err
		}
		if refund == nil {
			return ErrRefundNotFound
		}
		if refund.Status == constants.RefundStatusSucceeded {
			response = refundSnapshot(refund)
			return nil
		}

		intentRepo := s.intentRepo.WithTx(tx)
		intent, err := intentRepo.GetByIDForUpdate(refund.IntentID)
		if err != nil {
			return err
		}
		if intent == nil {
			return ErrIntentNotFound
		}
		if err := intent.ApplyRefund(refund.Amount); err != nil {
			return err
		}
		if err := intentRepo.UpdateWithVersion(intent); err != nil {
			return err
		}

		now := time.Now()
		refund.Status = constants.RefundStatusSucceeded
		if pspRefundID != "" {
			refund.PSPRefundID = pspRefundID
		}
		refund.CompletedAt = &now
		if err := refundRepo.Update(refund); err != nil {
			return err
		}

		debitAccount, err := s.refundDebitAccount(tx, intent)
		if err != nil {
			return err
		}
		entry := models.LedgerEntry{
			TransactionID: "rf-" + refund.RefundNo,
			EntryType:     constants.LedgerEntryTypeRefund,
			DebitAccount:  debitAccount,
			CreditAccount: repository.PSPSettlementAccount(intent.PSPName),
			Amount:        refund.Amount,
			Currency:      intent.Currency,
			StoreID:       intent.StoreID,
			IntentID:      intent.ID,
			RefundID:      refund.ID,
		}
		if err := s.ledgerRepo.WithTx(tx).Record([]models.LedgerEntry{entry}); err != nil {
			return err
		}

		storeID = intent.StoreID
		response = refundSnapshot(refund)
		return s.guard.CompleteTx(tx, record, response)
	})
	if err != nil {
		return nil, err
	}
	if storeID != 0 {
		if err := cache.DelStoreBalance(context.Background(), storeID); err != nil {
			logger.Warnw("refund_balance_cache_del_failed", "store_id", storeID, "error", err)
		}
	}
	return response, nil
}

// refundDebitAccount 退款从哪个余额桶出账：捕获已成熟走可用桶，否则走待结算桶
func (s *RefundService) refundDebitAccount(tx *gorm.DB, intent *models.PaymentIntent) (string, error) {
	ledgerRepo := s.ledgerRepo.WithTx(tx)
	capture, err := ledgerRepo.GetCaptureByIntent(intent.ID)
	if err != nil {
		return "", err
	}
	if capture != nil {
		matured, err := ledgerRepo.MaturationExists(capture.ID)
		if err != nil {
			return "", err
		}
		if matured {
			return repository.StoreAccount(intent.StoreID, constants.BalanceBucketAvailable), nil
		}
	}
	return repository.StoreAccount(intent.StoreID, constants.BalanceBucketPending), nil
}

// ConfirmPending 回调对账：把匹配金额的待确认退款终结为成功
func (s *RefundService) ConfirmPending(intentID uint, amount int64) error {
	pending, err := s.refundRepo.ListPendingByIntent(intentID)
	if err != nil {
		return err
	}
	for i := range pending {
		if amount != 0 && pending[i].Amount != amount {
			continue
		}
		if _, err := s.finalize(pending[i].ID, "", nil); err != nil {
			return err
		}
		logger.Infow("refund_confirmed_by_webhook",
			"refund_no", pending[i].RefundNo,
			"amount", pending[i].Amount,
		)
		return nil
	}
	return nil
}

// ListRefunds 查询某意向下的全部退款记录
func (s *RefundService) ListRefunds(intentID uint) ([]models.Refund, error) {
	intent, err := s.intentRepo.GetByID(intentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	refunds, _, err := s.refundRepo.List(repository.RefundListFilter{IntentID: intentID})
	return refunds, err
}

func refundSnapshot(refund *models.Refund) models.JSON {
	return models.JSON{
		"refund_id":     float64(refund.ID),
		"refund_no":     refund.RefundNo,
		"intent_id":     float64(refund.IntentID),
		"amount":        float64(refund.Amount),
		"status":        refund.Status,
		"psp_refund_id": refund.PSPRefundID,
	}
}
