package service

import (
	"context"
	"fmt"
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

// PayoutService 打款批次调度与结算
//
// 归集口径：店铺可用余额达到门槛且有已验证收款账户时生成批次，
// 批次经银行通道转账后写 PAYOUT 分录。转账失败按指数退避重试，
// 超过上限转 FAILED 等待人工处理。
type PayoutService struct {
	payoutRepo  repository.PayoutRepository
	storeRepo   repository.StoreRepository
	ledgerRepo  repository.LedgerRepository
	resolvePSP  PSPResolver
	minAmount   int64
	maxAttempts int
	retryBase   time.Duration
	pspTimeout  time.Duration
}

// NewPayoutService 创建打款服务
func NewPayoutService(
	payoutRepo repository.PayoutRepository,
	storeRepo repository.StoreRepository,
	ledgerRepo repository.LedgerRepository,
	resolvePSP PSPResolver,
	minAmount int64,
	maxAttempts int,
	retryBaseSeconds int,
	pspTimeoutSeconds int,
) *PayoutService {
	if minAmount <= 0 {
		minAmount = 10000
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if retryBaseSeconds <= 0 {
		retryBaseSeconds = 60
	}
	if pspTimeoutSeconds <= 0 {
		pspTimeoutSeconds = 15
	}
	return &PayoutService{
		payoutRepo:  payoutRepo,
		storeRepo:   storeRepo,
		ledgerRepo:  ledgerRepo,
		resolvePSP:  resolvePSP,
		minAmount:   minAmount,
		maxAttempts: maxAttempts,
		retryBase:   time.Duration(retryBaseSeconds) * time.Second,
		pspTimeout:  time.Duration(pspTimeoutSeconds) * time.Second,
	}
}

// ScheduleBatches 为达到打款门槛的店铺生成批次
func (s *PayoutService) ScheduleBatches(ctx context.Context) (int, error) {
	stores, err := s.storeRepo.ListActive()
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for i := range stores {
		select {
		case <-ctx.Done():
			return scheduled, ctx.Err()
		default:
		}
		created, err := s.scheduleStore(&stores[i])
		if err != nil {
			logger.Warnw("payout_schedule_store_failed",
				"store_id", stores[i].ID,
				"error", err,
			)
			continue
		}
		if created {
			scheduled++
		}
	}
	return scheduled, nil
}

func (s *PayoutService) scheduleStore(store *models.Store) (bool, error) {
	open, err := s.payoutRepo.HasOpenBatch(store.ID)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}
	available, err := s.ledgerRepo.Balance(repository.StoreAccount(store.ID, constants.BalanceBucketAvailable))
	if err != nil {
		return false, err
	}
	threshold := s.minAmount
	if store.MinPayoutAmount > threshold {
		threshold = store.MinPayoutAmount
	}
	if available < threshold {
		return false, nil
	}
	account, err := s.storeRepo.GetVerifiedBankAccount(store.ID)
	if err != nil {
		return false, err
	}
	if account == nil {
		logger.Warnw("payout_skipped_no_verified_account", "store_id", store.ID)
		return false, nil
	}

	maturations, err := s.payoutRepo.ListUnbatchedMaturations(store.ID)
	if err != nil {
		return false, err
	}

	batch := &models.PayoutBatch{
		BatchNo:       "po_" + uuid.NewString(),
		StoreID:       store.ID,
		BankAccountID: account.ID,
		Amount:        available,
		Currency:      store.Currency,
		Status:        constants.PayoutStatusScheduled,
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		payoutRepo := s.payoutRepo.WithTx(tx)
		if err := payoutRepo.Create(batch); err != nil {
			return err
		}
		links := make([]models.PayoutBatchEntry, 0, len(maturations))
		for _, entry := range maturations {
			links = append(links, models.PayoutBatchEntry{
				BatchID:       batch.ID,
				LedgerEntryID: entry.ID,
			})
		}
		return payoutRepo.CreateEntries(links)
	})
	if err != nil {
		return false, err
	}
	logger.Infow("payout_batch_scheduled",
		"batch_no", batch.BatchNo,
		"store_id", store.ID,
		"amount", available,
	)
	return true, nil
}

// SettleDue 结算到期批次
func (s *PayoutService) SettleDue(ctx context.Context, limit int) (int, error) {
	batches, err := s.payoutRepo.ListDue(time.Now(), limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for i := range batches {
		select {
		case <-ctx.Done():
			return settled, ctx.Err()
		default:
		}
		if err := s.settleBatch(ctx, batches[i].ID); err != nil {
			logger.Warnw("payout_settle_failed",
				"batch_no", batches[i].BatchNo,
				"error", err,
			)
			continue
		}
		settled++
	}
	return settled, nil
}

// SettleBatch 对指定批次立即发起结算
func (s *PayoutService) SettleBatch(ctx context.Context, batchID uint) error {
	return s.settleBatch(ctx, batchID)
}

// settleBatch 对单个批次发起银行转账并在成功后记账
func (s *PayoutService) settleBatch(ctx context.Context, batchID uint) error {
	batch, err := s.payoutRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch == nil {
		return ErrPayoutNotFound
	}
	if batch.Status != constants.PayoutStatusScheduled {
		return nil
	}
	if err := s.ensureFunded(batch); err != nil {
		return err
	}
	account, err := s.bankAccount(batch)
	if err != nil {
		return err
	}
	transferrer, err := s.transferDriver()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.pspTimeout)
	defer cancel()
	result, err := transferrer.Transfer(callCtx, psp.TransferInput{
		BatchNo:       batch.BatchNo,
		HolderName:    account.HolderName,
		BankCode:      account.BankCode,
		AccountNumber: account.AccountNumber,
		Amount:        batch.Amount,
		Currency:      batch.Currency,
	})
	if err != nil {
		return s.recordFailure(batch, err)
	}
	return s.recordSettled(batch, result.TransferRef)
}

// ensureFunded 转账前复核可用余额：批次金额在生成时冻结，之后的退款
// 仍会从可用桶出账，按冻结金额直接打款会把余额打成负数。余额不足时
// 不发起转账，按失败路径退避，超限后转 FAILED 等待人工处理。
func (s *PayoutService) ensureFunded(batch *models.PayoutBatch) error {
	available, err := s.ledgerRepo.Balance(repository.StoreAccount(batch.StoreID, constants.BalanceBucketAvailable))
	if err != nil {
		return err
	}
	if available < batch.Amount {
		logger.Errorw("payout_batch_underfunded",
			"batch_no", batch.BatchNo,
			"store_id", batch.StoreID,
			"amount", batch.Amount,
			"available", available,
		)
		return s.recordFailure(batch, ErrPayoutUnderfunded)
	}
	return nil
}

func (s *PayoutService) bankAccount(batch *models.PayoutBatch) (*models.StoreBankAccount, error) {
	account, err := s.storeRepo.GetVerifiedBankAccount(batch.StoreID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrBankAccountMissing
	}
	return account, nil
}

// transferDriver 打款走 Debitrail 的银行转账通道
func (s *PayoutService) transferDriver() (psp.Transferrer, error) {
	driver, err := s.resolvePSP(constants.PSPDebitrail)
	if err != nil {
		return nil, err
	}
	transferrer, ok := driver.(psp.Transferrer)
	if !ok {
		return nil, fmt.Errorf("psp %s does not support transfers", driver.Name())
	}
	return transferrer, nil
}

func (s *PayoutService) recordSettled(batch *models.PayoutBatch, transferRef string) error {
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		payoutRepo := s.payoutRepo.WithTx(tx)
		locked, err := payoutRepo.GetByIDForUpdate(batch.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != constants.PayoutStatusScheduled {
			return nil
		}
		available, err := s.ledgerRepo.WithTx(tx).Balance(repository.StoreAccount(locked.StoreID, constants.BalanceBucketAvailable))
		if err != nil {
			return err
		}
		if available < locked.Amount {
			// 转账已执行且不可撤回，照实入账并告警，差额走人工对账
			logger.Errorw("payout_settle_overdraw",
				"batch_no", locked.BatchNo,
				"amount", locked.Amount,
				"available", available,
			)
		}
		now := time.Now()
		locked.Status = constants.PayoutStatusSettled
		locked.TransferRef = transferRef
		locked.SettledAt = &now
		if err := payoutRepo.Update(locked); err != nil {
			return err
		}
		entry := models.LedgerEntry{
			TransactionID: "po-" + locked.BatchNo,
			EntryType:     constants.LedgerEntryTypePayout,
			DebitAccount:  repository.StoreAccount(locked.StoreID, constants.BalanceBucketAvailable),
			CreditAccount: repository.AccountBankPayout,
			Amount:        locked.Amount,
			Currency:      locked.Currency,
			StoreID:       locked.StoreID,
		}
		if err := s.ledgerRepo.WithTx(tx).Record([]models.LedgerEntry{entry}); err != nil {
			return err
		}
		logger.Infow("payout_batch_settled",
			"batch_no", locked.BatchNo,
			"store_id", locked.StoreID,
			"amount", locked.Amount,
			"transfer_ref", transferRef,
		)
		return nil
	})
	if err != nil {
		return err
	}
	if err := cache.DelStoreBalance(context.Background(), batch.StoreID); err != nil {
		logger.Warnw("payout_balance_cache_del_failed", "store_id", batch.StoreID, "error", err)
	}
	return nil
}

// recordFailure 记录失败并按指数退避安排重试，超限转 FAILED
func (s *PayoutService) recordFailure(batch *models.PayoutBatch, cause error) error {
	batch.Attempts++
	batch.FailureReason = cause.Error()
	if batch.Attempts >= s.maxAttempts {
		batch.Status = constants.PayoutStatusFailed
		batch.NextAttemptAt = nil
		logger.Errorw("payout_batch_failed_terminal",
			"batch_no", batch.BatchNo,
			"attempts", batch.Attempts,
			"error", cause,
		)
	} else {
		backoff := s.retryBase * time.Duration(1<<(batch.Attempts-1))
		next := time.Now().Add(backoff)
		batch.NextAttemptAt = &next
		logger.Warnw("payout_batch_retry_scheduled",
			"batch_no", batch.BatchNo,
			"attempts", batch.Attempts,
			"next_attempt_at", next,
		)
	}
	if err := s.payoutRepo.Update(batch); err != nil {
		return err
	}
	return cause
}

// RetryBatch 人工重试已终结失败的批次
func (s *PayoutService) RetryBatch(batchID uint) (*models.PayoutBatch, error) {
	batch, err := s.payoutRepo.GetByID(batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrPayoutNotFound
	}
	if batch.Status != constants.PayoutStatusFailed {
		return nil, ErrPayoutInvalidStatus
	}
	batch.Status = constants.PayoutStatusScheduled
	batch.Attempts = 0
	batch.NextAttemptAt = nil
	batch.FailureReason = ""
	if err := s.payoutRepo.Update(batch); err != nil {
		return nil, err
	}
	logger.Infow("payout_batch_retry_requested", "batch_no", batch.BatchNo)
	return batch, nil
}

// ListBatches 分页查询打款批次
func (s *PayoutService) ListBatches(filter repository.PayoutListFilter) ([]models.PayoutBatch, int64, error) {
	return s.payoutRepo.List(filter)
}
