package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/psp"
	"github.com/payhub-next/internal/repository"
)

func createVerifiedBankAccount(t *testing.T, env *serviceTestEnv, storeID uint) *models.StoreBankAccount {
	t.Helper()
	now := time.Now()
	account := &models.StoreBankAccount{
		StoreID:       storeID,
		HolderName:    "Demo Store GmbH",
		BankCode:      "DEUTDEFF",
		AccountNumber: "DE02120300000000202051",
		KYCStatus:     constants.BankAccountKYCVerified,
		VerifiedAt:    &now,
	}
	if err := env.db.Create(account).Error; err != nil {
		t.Fatalf("create bank account failed: %v", err)
	}
	return account
}

// matureCapture 落一笔捕获并立即成熟，得到可用余额
func matureCapture(t *testing.T, env *serviceTestEnv, store *models.Store, amount int64) {
	t.Helper()
	intent := createCapturedIntent(t, env, store, amount)
	backdateEntries(t, env, intent.ID, 48*time.Hour)
	if _, err := env.ledgerSvc.MatureEligible(context.Background(), 100); err != nil {
		t.Fatalf("mature failed: %v", err)
	}
}

func TestScheduleBatchesThreshold(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	createVerifiedBankAccount(t, env, store.ID)

	// 可用余额 8000 低于全局门槛 10000：不生成批次
	matureCapture(t, env, store, 8000)
	n, err := env.payoutSvc.ScheduleBatches(context.Background())
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("scheduled = %d, want 0", n)
	}

	// 追加到 16000：生成一个覆盖全部可用余额的批次
	matureCapture(t, env, store, 8000)
	n, err = env.payoutSvc.ScheduleBatches(context.Background())
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("scheduled = %d, want 1", n)
	}
	var batch models.PayoutBatch
	if err := env.db.First(&batch).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if batch.Amount != 16000 || batch.Status != constants.PayoutStatusScheduled {
		t.Fatalf("batch = {amount:%d status:%s}", batch.Amount, batch.Status)
	}
	var links int64
	if err := env.db.Model(&models.PayoutBatchEntry{}).Where("batch_id = ?", batch.ID).Count(&links).Error; err != nil {
		t.Fatalf("count links failed: %v", err)
	}
	if links != 2 {
		t.Fatalf("batch entries = %d, want 2", links)
	}

	// 已有未结批次时不再重复生成
	n, err = env.payoutSvc.ScheduleBatches(context.Background())
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("rescheduled = %d, want 0", n)
	}
}

func TestScheduleBatchesStoreThreshold(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	store.MinPayoutAmount = 50000
	if err := env.db.Save(store).Error; err != nil {
		t.Fatalf("save store failed: %v", err)
	}
	createVerifiedBankAccount(t, env, store.ID)
	matureCapture(t, env, store, 20000)

	// 店铺门槛 50000 高于全局门槛，余额 20000 不出批
	n, err := env.payoutSvc.ScheduleBatches(context.Background())
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("scheduled = %d, want 0", n)
	}
}

func TestScheduleBatchesRequiresVerifiedAccount(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	matureCapture(t, env, store, 20000)

	account := createVerifiedBankAccount(t, env, store.ID)
	account.KYCStatus = constants.BankAccountKYCPending
	if err := env.db.Save(account).Error; err != nil {
		t.Fatalf("save account failed: %v", err)
	}

	n, err := env.payoutSvc.ScheduleBatches(context.Background())
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("scheduled without verified account = %d, want 0", n)
	}
}

func schedulePayoutBatch(t *testing.T, env *serviceTestEnv, store *models.Store, amount int64) *models.PayoutBatch {
	t.Helper()
	createVerifiedBankAccount(t, env, store.ID)
	matureCapture(t, env, store, amount)
	if _, err := env.payoutSvc.ScheduleBatches(context.Background()); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	var batch models.PayoutBatch
	if err := env.db.Order("id DESC").First(&batch).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	return &batch
}

func TestSettleDueTransfersAndDebitsLedger(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	batch := schedulePayoutBatch(t, env, store, 20000)

	n, err := env.payoutSvc.SettleDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("settled = %d, want 1", n)
	}
	var got models.PayoutBatch
	if err := env.db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.Status != constants.PayoutStatusSettled || got.TransferRef == "" || got.SettledAt == nil {
		t.Fatalf("batch after settle = {status:%s ref:%s}", got.Status, got.TransferRef)
	}

	available, err := env.ledgerRepo.Balance(repository.StoreAccount(store.ID, constants.BalanceBucketAvailable))
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if available != 0 {
		t.Fatalf("available after payout = %d, want 0", available)
	}
	bank, err := env.ledgerRepo.Balance(repository.AccountBankPayout)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if bank != 20000 {
		t.Fatalf("bank payout account = %d, want 20000", bank)
	}
}

func TestSettleDueSkipsUnderfundedBatch(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	batch := schedulePayoutBatch(t, env, store, 20000)

	// 批次生成后又发生退款：捕获已成熟，退款从可用桶出账
	var intent models.PaymentIntent
	if err := env.db.Order("id DESC").First(&intent).Error; err != nil {
		t.Fatalf("load intent failed: %v", err)
	}
	if _, err := env.refundSvc.Refund(context.Background(), intent.ID, RefundInput{
		Amount:         5000,
		IdempotencyKey: "post-batch",
	}, 1); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	// 可用余额只剩 15000，不足以按冻结金额 20000 打款
	n, err := env.payoutSvc.SettleDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("settled = %d, want 0", n)
	}
	if env.driver.transferCalls != 0 {
		t.Fatalf("transfer calls = %d, want 0", env.driver.transferCalls)
	}
	var got models.PayoutBatch
	if err := env.db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.Status != constants.PayoutStatusScheduled || got.Attempts != 1 {
		t.Fatalf("underfunded batch = {status:%s attempts:%d}", got.Status, got.Attempts)
	}
	if got.NextAttemptAt == nil {
		t.Fatal("next attempt not scheduled")
	}

	// 余额不能被打成负数
	available, err := env.ledgerRepo.Balance(repository.StoreAccount(store.ID, constants.BalanceBucketAvailable))
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if available != 15000 {
		t.Fatalf("available = %d, want 15000", available)
	}
	bank, err := env.ledgerRepo.Balance(repository.AccountBankPayout)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if bank != 0 {
		t.Fatalf("bank payout account = %d, want 0", bank)
	}
}

func TestSettleDueBacksOffAndTerminates(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	batch := schedulePayoutBatch(t, env, store, 20000)

	env.driver.transferErr = fmt.Errorf("%w: channel down", psp.ErrProviderUnavailable)
	if _, err := env.payoutSvc.SettleDue(context.Background(), 100); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	var got models.PayoutBatch
	if err := env.db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.Status != constants.PayoutStatusScheduled || got.Attempts != 1 {
		t.Fatalf("after first failure = {status:%s attempts:%d}", got.Status, got.Attempts)
	}
	if got.NextAttemptAt == nil || got.NextAttemptAt.Before(time.Now().Add(50*time.Second)) {
		t.Fatalf("next attempt = %v, want ~60s backoff", got.NextAttemptAt)
	}

	// 退避生效：尚未到期的批次不会被再次结算
	if _, err := env.payoutSvc.SettleDue(context.Background(), 100); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if err := env.db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts after backoff window = %d, want 1", got.Attempts)
	}

	// 连续失败达到上限后转入 FAILED
	past := time.Now().Add(-time.Minute)
	for got.Status == constants.PayoutStatusScheduled {
		if err := env.db.Model(&models.PayoutBatch{}).Where("id = ?", batch.ID).
			Update("next_attempt_at", past).Error; err != nil {
			t.Fatalf("backdate attempt failed: %v", err)
		}
		if _, err := env.payoutSvc.SettleDue(context.Background(), 100); err != nil {
			t.Fatalf("settle failed: %v", err)
		}
		if err := env.db.First(&got, batch.ID).Error; err != nil {
			t.Fatalf("load batch failed: %v", err)
		}
	}
	if got.Status != constants.PayoutStatusFailed || got.Attempts != 3 {
		t.Fatalf("terminal batch = {status:%s attempts:%d}, want FAILED after 3", got.Status, got.Attempts)
	}
	if got.FailureReason == "" {
		t.Fatal("failure reason not recorded")
	}

	// 人工重试重新入队
	retried, err := env.payoutSvc.RetryBatch(batch.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried.Status != constants.PayoutStatusScheduled || retried.Attempts != 0 {
		t.Fatalf("retried batch = {status:%s attempts:%d}", retried.Status, retried.Attempts)
	}

	env.driver.transferErr = nil
	if _, err := env.payoutSvc.SettleDue(context.Background(), 100); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if err := env.db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.Status != constants.PayoutStatusSettled {
		t.Fatalf("status after retry = %s, want SETTLED", got.Status)
	}
}

func TestRetryBatchRejectsNonFailed(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	batch := schedulePayoutBatch(t, env, store, 20000)

	if _, err := env.payoutSvc.RetryBatch(batch.ID); !errors.Is(err, ErrPayoutInvalidStatus) {
		t.Fatalf("retry scheduled batch error = %v, want ErrPayoutInvalidStatus", err)
	}
	if _, err := env.payoutSvc.RetryBatch(9999); !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("retry missing batch error = %v, want ErrPayoutNotFound", err)
	}
}
