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

// PSPResolver 按提供方名称解析驱动
type PSPResolver func(name string) (psp.Driver, error)

// PaymentService 支付意向编排服务
//
// 意向状态只在这里和已验签回调的处理路径上推进。捕获以服务端确认
// （回调或同步捕获返回）为唯一触发，客户端跳转不改变状态。
type PaymentService struct {
	intentRepo  repository.IntentRepository
	storeRepo   repository.StoreRepository
	ledgerRepo  repository.LedgerRepository
	refundSvc   *RefundService
	resolvePSP  PSPResolver
	pspTimeout  time.Duration
	expireAfter time.Duration
}

// CreateIntentInput 创建支付意向输入
type CreateIntentInput struct {
	StoreID   uint
	Amount    int64
	Currency  string
	PSPName   string
	ReturnURL string
	ClientIP  string
}

// CreateIntentResult 创建支付意向结果
type CreateIntentResult struct {
	Intent      *models.PaymentIntent
	RedirectURL string
}

// NewPaymentService 创建支付意向服务
func NewPaymentService(
	intentRepo repository.IntentRepository,
	storeRepo repository.StoreRepository,
	ledgerRepo repository.LedgerRepository,
	refundSvc *RefundService,
	resolvePSP PSPResolver,
	pspTimeoutSeconds int,
	intentExpireMinutes int,
) *PaymentService {
	if pspTimeoutSeconds <= 0 {
		pspTimeoutSeconds = 15
	}
	if intentExpireMinutes <= 0 {
		intentExpireMinutes = 30
	}
	return &PaymentService{
		intentRepo:  intentRepo,
		storeRepo:   storeRepo,
		ledgerRepo:  ledgerRepo,
		refundSvc:   refundSvc,
		resolvePSP:  resolvePSP,
		pspTimeout:  time.Duration(pspTimeoutSeconds) * time.Second,
		expireAfter: time.Duration(intentExpireMinutes) * time.Minute,
	}
}

// CreateIntent 创建支付意向并向 PSP 发起授权
func (s *PaymentService) CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error) {
	if input.Amount <= 0 || strings.TrimSpace(input.Currency) == "" {
		return nil, ErrIntentInvalidArg
	}
	store, err := s.storeRepo.GetByID(input.StoreID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrStoreNotFound
	}
	if !store.IsActive {
		return nil, ErrStoreInactive
	}
	driver, err := s.resolvePSP(input.PSPName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntentInvalidArg, err)
	}

	intent := &models.PaymentIntent{
		IntentNo: "pi_" + uuid.NewString(),
		StoreID:  store.ID,
		Amount:   input.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(input.Currency)),
		PSPName:  driver.Name(),
		Status:   constants.IntentStatusCreated,
	}
	if err := s.intentRepo.Create(intent); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.pspTimeout)
	defer cancel()
	auth, err := driver.Authorize(callCtx, psp.AuthorizeInput{
		IntentNo:  intent.IntentNo,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		ReturnURL: input.ReturnURL,
		ClientIP:  input.ClientIP,
	})
	if err != nil {
		logger.Warnw("payment_authorize_failed",
			"intent_no", intent.IntentNo,
			"psp", driver.Name(),
			"error", err,
		)
		if errors.Is(err, psp.ErrProviderRejected) {
			if markErr := s.markFailed(intent); markErr != nil {
				return nil, markErr
			}
		}
		// 超时或提供方不可用：结果未知，意向停留在 CREATED 等待回调或过期
		return nil, err
	}

	expiresAt := auth.ExpiresAt
	if expiresAt == nil {
		fallback := time.Now().Add(s.expireAfter)
		expiresAt = &fallback
	}
	if err := intent.MarkAuthorized(auth.ReferenceID, time.Now(), expiresAt); err != nil {
		return nil, err
	}
	if err := s.intentRepo.UpdateWithVersion(intent); err != nil {
		return nil, err
	}
	logger.Infow("payment_intent_authorized",
		"intent_no", intent.IntentNo,
		"psp", driver.Name(),
		"psp_reference_id", auth.ReferenceID,
		"amount", intent.Amount,
	)
	return &CreateIntentResult{Intent: intent, RedirectURL: auth.RedirectURL}, nil
}

// GetIntent 查询支付意向
func (s *PaymentService) GetIntent(id uint) (*models.PaymentIntent, error) {
	intent, err := s.intentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// ListIntents 分页查询支付意向
func (s *PaymentService) ListIntents(filter repository.IntentListFilter) ([]models.PaymentIntent, int64, error) {
	return s.intentRepo.List(filter)
}

// HandleWebhook 处理提供方回调
//
// 验签失败直接拒绝。事件按意向当前状态幂等处理：重复送达的已处理
// 事件不再产生任何效果。
func (s *PaymentService) HandleWebhook(pspName string, verify func() (*psp.WebhookEvent, error)) error {
	event, err := verify()
	if err != nil {
		if errors.Is(err, psp.ErrSignatureInvalid) {
			return ErrWebhookSignature
		}
		return err
	}
	intent, err := s.intentRepo.GetByPSPReference(pspName, event.ReferenceID)
	if err != nil {
		return err
	}
	if intent == nil {
		return ErrWebhookUnmatched
	}

	switch event.Type {
	case psp.EventAuthorized:
		// 授权在创建路径上同步落库，回调仅作迟到确认
		return nil
	case psp.EventCaptured:
		return s.applyCapture(intent.ID, event)
	case psp.EventFailed:
		return s.applyFailure(intent.ID)
	case psp.EventRefunded:
		return s.refundSvc.ConfirmPending(intent.ID, event.Amount)
	}
	return nil
}

// applyCapture 在单个事务内推进意向到 CAPTURED 并写入捕获与手续费分录
func (s *PaymentService) applyCapture(intentID uint, event *psp.WebhookEvent) error {
	var storeID uint
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		intentRepo := s.intentRepo.WithTx(tx)
		intent, err := intentRepo.GetByIDForUpdate(intentID)
		if err != nil {
			return err
		}
		if intent == nil {
			return ErrIntentNotFound
		}
		if intent.Status == constants.IntentStatusCaptured ||
			intent.Status == constants.IntentStatusPartiallyRefunded ||
			intent.Status == constants.IntentStatusRefunded {
			// 重复回调
			return nil
		}
		amount := event.Amount
		if amount == 0 {
			amount = intent.Amount
		}
		if err := intent.MarkCaptured(amount, event.OccurredAt); err != nil {
			return err
		}
		if err := intentRepo.UpdateWithVersion(intent); err != nil {
			return err
		}

		store, err := s.storeRepo.WithTx(tx).GetByID(intent.StoreID)
		if err != nil {
			return err
		}
		if store == nil {
			return ErrStoreNotFound
		}
		fee := store.FeeRate.ApplyTo(amount)

		txnID := "cap-" + intent.IntentNo
		pending := repository.StoreAccount(intent.StoreID, constants.BalanceBucketPending)
		entries := []models.LedgerEntry{{
			TransactionID: txnID,
			EntryType:     constants.LedgerEntryTypeCapture,
			DebitAccount:  repository.PSPSettlementAccount(intent.PSPName),
			CreditAccount: pending,
			Amount:        amount,
			Currency:      intent.Currency,
			StoreID:       intent.StoreID,
			IntentID:      intent.ID,
		}}
		if fee > 0 {
			entries = append(entries, models.LedgerEntry{
				TransactionID: txnID,
				EntryType:     constants.LedgerEntryTypeFee,
				DebitAccount:  pending,
				CreditAccount: repository.AccountPlatformFees,
				Amount:        fee,
				Currency:      intent.Currency,
				StoreID:       intent.StoreID,
				IntentID:      intent.ID,
			})
		}
		if err := s.ledgerRepo.WithTx(tx).Record(entries); err != nil {
			return err
		}
		storeID = intent.StoreID
		logger.Infow("payment_capture_recorded",
			"intent_no", intent.IntentNo,
			"amount", amount,
			"fee", fee,
		)
		return nil
	})
	if err != nil {
		return err
	}
	if storeID != 0 {
		if err := cache.DelStoreBalance(context.Background(), storeID); err != nil {
			logger.Warnw("payment_balance_cache_del_failed", "store_id", storeID, "error", err)
		}
	}
	return nil
}

func (s *PaymentService) applyFailure(intentID uint) error {
	return models.DB.Transaction(func(tx *gorm.DB) error {
		intentRepo := s.intentRepo.WithTx(tx)
		intent, err := intentRepo.GetByIDForUpdate(intentID)
		if err != nil {
			return err
		}
		if intent == nil {
			return ErrIntentNotFound
		}
		if intent.Status == constants.IntentStatusFailed {
			return nil
		}
		if err := intent.MarkFailed(); err != nil {
			// 已捕获的意向不受失败事件影响
			if errors.Is(err, models.ErrIntentInvalidTransition) {
				return nil
			}
			return err
		}
		return intentRepo.UpdateWithVersion(intent)
	})
}

func (s *PaymentService) markFailed(intent *models.PaymentIntent) error {
	if err := intent.MarkFailed(); err != nil {
		return err
	}
	return s.intentRepo.UpdateWithVersion(intent)
}

// ExpireStale 将授权过期仍未捕获的意向转入 FAILED
func (s *PaymentService) ExpireStale(ctx context.Context, limit int) (int, error) {
	intents, err := s.intentRepo.ListExpired(limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range intents {
		select {
		case <-ctx.Done():
			return expired, ctx.Err()
		default:
		}
		if err := s.applyFailure(intents[i].ID); err != nil {
			logger.Warnw("payment_intent_expire_failed",
				"intent_no", intents[i].IntentNo,
				"error", err,
			)
			continue
		}
		expired++
	}
	if expired > 0 {
		logger.Infow("payment_intents_expired", "count", expired)
	}
	return expired, nil
}
