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

func TestCreateIntentAuthorizes(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "2.9")

	result, err := env.paymentSvc.CreateIntent(context.Background(), CreateIntentInput{
		StoreID:  store.ID,
		Amount:   10000,
		Currency: "eur",
		PSPName:  constants.PSPCardnet,
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	if result.Intent.Status != constants.IntentStatusAuthorized {
		t.Fatalf("status = %s, want AUTHORIZED", result.Intent.Status)
	}
	if result.Intent.Currency != "EUR" {
		t.Fatalf("currency = %s, want EUR", result.Intent.Currency)
	}
	if result.Intent.PSPReferenceID == "" || result.RedirectURL == "" {
		t.Fatalf("missing psp reference or redirect: %+v", result)
	}
	if result.Intent.ExpiresAt == nil {
		t.Fatal("expires_at not set")
	}
}

func TestCreateIntentProviderOutcomes(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")

	// 明确拒绝：意向转入 FAILED
	env.driver.authorizeErr = fmt.Errorf("%w: card declined", psp.ErrProviderRejected)
	if _, err := env.paymentSvc.CreateIntent(context.Background(), CreateIntentInput{
		StoreID:  store.ID,
		Amount:   5000,
		Currency: "EUR",
		PSPName:  constants.PSPCardnet,
	}); !errors.Is(err, psp.ErrProviderRejected) {
		t.Fatalf("rejected error = %v", err)
	}
	var rejected models.PaymentIntent
	if err := env.db.Order("id DESC").First(&rejected).Error; err != nil {
		t.Fatalf("load intent failed: %v", err)
	}
	if rejected.Status != constants.IntentStatusFailed {
		t.Fatalf("status = %s, want FAILED", rejected.Status)
	}

	// 结果未知：意向停留在 CREATED
	env.driver.authorizeErr = fmt.Errorf("%w: gateway timeout", psp.ErrProviderUnavailable)
	if _, err := env.paymentSvc.CreateIntent(context.Background(), CreateIntentInput{
		StoreID:  store.ID,
		Amount:   5000,
		Currency: "EUR",
		PSPName:  constants.PSPCardnet,
	}); !errors.Is(err, psp.ErrProviderUnavailable) {
		t.Fatalf("unavailable error = %v", err)
	}
	var stuck models.PaymentIntent
	if err := env.db.Order("id DESC").First(&stuck).Error; err != nil {
		t.Fatalf("load intent failed: %v", err)
	}
	if stuck.Status != constants.IntentStatusCreated {
		t.Fatalf("status = %s, want CREATED", stuck.Status)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")

	if _, err := env.paymentSvc.CreateIntent(context.Background(), CreateIntentInput{
		StoreID:  store.ID,
		Amount:   0,
		Currency: "EUR",
	}); !errors.Is(err, ErrIntentInvalidArg) {
		t.Fatalf("zero amount error = %v", err)
	}
	if _, err := env.paymentSvc.CreateIntent(context.Background(), CreateIntentInput{
		StoreID:  999,
		Amount:   100,
		Currency: "EUR",
	}); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("missing store error = %v", err)
	}

	store.IsActive = false
	if err := env.db.Save(store).Error; err != nil {
		t.Fatalf("save store failed: %v", err)
	}
	if _, err := env.paymentSvc.CreateIntent(context.Background(), CreateIntentInput{
		StoreID:  store.ID,
		Amount:   100,
		Currency: "EUR",
	}); !errors.Is(err, ErrStoreInactive) {
		t.Fatalf("inactive store error = %v", err)
	}
}

func createAuthorizedIntent(t *testing.T, env *serviceTestEnv, store *models.Store, amount int64) *models.PaymentIntent {
	t.Helper()
	result, err := env.paymentSvc.CreateIntent(context.Background(), CreateIntentInput{
		StoreID:  store.ID,
		Amount:   amount,
		Currency: "EUR",
		PSPName:  constants.PSPCardnet,
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	return result.Intent
}

func TestWebhookCaptureWritesLedger(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "2.9")
	intent := createAuthorizedIntent(t, env, store, 10000)

	env.driver.event = &psp.WebhookEvent{
		Type:        psp.EventCaptured,
		ReferenceID: intent.PSPReferenceID,
		Amount:      10000,
		Currency:    "EUR",
		OccurredAt:  time.Now(),
	}
	verify := func() (*psp.WebhookEvent, error) { return env.driver.event, nil }
	if err := env.paymentSvc.HandleWebhook(constants.PSPCardnet, verify); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}

	var got models.PaymentIntent
	if err := env.db.First(&got, intent.ID).Error; err != nil {
		t.Fatalf("load intent failed: %v", err)
	}
	if got.Status != constants.IntentStatusCaptured || got.CapturedAmount != 10000 {
		t.Fatalf("after capture: status=%s captured=%d", got.Status, got.CapturedAmount)
	}

	// 捕获入账 10000，手续费 2.9% 出账 290
	pending, err := env.ledgerRepo.Balance(repository.StoreAccount(store.ID, constants.BalanceBucketPending))
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if pending != 9710 {
		t.Fatalf("pending balance = %d, want 9710", pending)
	}
	fees, err := env.ledgerRepo.Balance(repository.AccountPlatformFees)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if fees != 290 {
		t.Fatalf("platform fees = %d, want 290", fees)
	}

	// 同一事件重放不得重复记账
	if err := env.paymentSvc.HandleWebhook(constants.PSPCardnet, verify); err != nil {
		t.Fatalf("replayed webhook failed: %v", err)
	}
	if n := countLedgerEntries(t, env.db, constants.LedgerEntryTypeCapture); n != 1 {
		t.Fatalf("capture entries after replay = %d, want 1", n)
	}
}

func TestWebhookRejections(t *testing.T) {
	env := setupServiceTest(t)

	if err := env.paymentSvc.HandleWebhook(constants.PSPCardnet, func() (*psp.WebhookEvent, error) {
		return nil, psp.ErrSignatureInvalid
	}); !errors.Is(err, ErrWebhookSignature) {
		t.Fatalf("bad signature error = %v, want ErrWebhookSignature", err)
	}

	if err := env.paymentSvc.HandleWebhook(constants.PSPCardnet, func() (*psp.WebhookEvent, error) {
		return &psp.WebhookEvent{Type: psp.EventCaptured, ReferenceID: "no-such-ref"}, nil
	}); !errors.Is(err, ErrWebhookUnmatched) {
		t.Fatalf("unmatched error = %v, want ErrWebhookUnmatched", err)
	}
}

func TestWebhookFailureEvent(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	intent := createAuthorizedIntent(t, env, store, 5000)

	verify := func() (*psp.WebhookEvent, error) {
		return &psp.WebhookEvent{Type: psp.EventFailed, ReferenceID: intent.PSPReferenceID}, nil
	}
	if err := env.paymentSvc.HandleWebhook(constants.PSPCardnet, verify); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	var got models.PaymentIntent
	if err := env.db.First(&got, intent.ID).Error; err != nil {
		t.Fatalf("load intent failed: %v", err)
	}
	if got.Status != constants.IntentStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	// 失败事件重放为空操作
	if err := env.paymentSvc.HandleWebhook(constants.PSPCardnet, verify); err != nil {
		t.Fatalf("replayed failure webhook failed: %v", err)
	}
}

func TestWebhookConfirmsPendingRefund(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	intent := createCapturedIntent(t, env, store, 10000)
	if err := env.db.Model(&models.PaymentIntent{}).Where("id = ?", intent.ID).
		Update("psp_reference_id", "ref-pending").Error; err != nil {
		t.Fatalf("set reference failed: %v", err)
	}

	// 提供方结果未知，退款停留在 PENDING_CONFIRMATION
	env.driver.refundErr = fmt.Errorf("%w: timeout", psp.ErrProviderUnavailable)
	if _, err := env.refundSvc.Refund(context.Background(), intent.ID, RefundInput{
		Amount:         4000,
		IdempotencyKey: "wh-key",
	}, 1); !errors.Is(err, ErrRefundProviderFailed) {
		t.Fatalf("unavailable error = %v", err)
	}

	// 退款回调对账终结该笔退款
	if err := env.paymentSvc.HandleWebhook(constants.PSPCardnet, func() (*psp.WebhookEvent, error) {
		return &psp.WebhookEvent{
			Type:        psp.EventRefunded,
			ReferenceID: "ref-pending",
			Amount:      4000,
			Currency:    "EUR",
		}, nil
	}); err != nil {
		t.Fatalf("refund webhook failed: %v", err)
	}

	var refund models.Refund
	if err := env.db.Where("intent_id = ?", intent.ID).First(&refund).Error; err != nil {
		t.Fatalf("load refund failed: %v", err)
	}
	if refund.Status != constants.RefundStatusSucceeded {
		t.Fatalf("refund status = %s, want SUCCEEDED", refund.Status)
	}
	var got models.PaymentIntent
	if err := env.db.First(&got, intent.ID).Error; err != nil {
		t.Fatalf("load intent failed: %v", err)
	}
	if got.Status != constants.IntentStatusPartiallyRefunded || got.RefundedAmount != 4000 {
		t.Fatalf("after confirm: status=%s refunded=%d", got.Status, got.RefundedAmount)
	}
}

func TestExpireStale(t *testing.T) {
	env := setupServiceTest(t)
	store := createTestStore(t, env.db, "0")
	intent := createAuthorizedIntent(t, env, store, 5000)

	past := time.Now().Add(-time.Hour)
	if err := env.db.Model(&models.PaymentIntent{}).Where("id = ?", intent.ID).
		Update("expires_at", past).Error; err != nil {
		t.Fatalf("backdate expiry failed: %v", err)
	}

	n, err := env.paymentSvc.ExpireStale(context.Background(), 100)
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	var got models.PaymentIntent
	if err := env.db.First(&got, intent.ID).Error; err != nil {
		t.Fatalf("load intent failed: %v", err)
	}
	if got.Status != constants.IntentStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}

	if again, err := env.paymentSvc.ExpireStale(context.Background(), 100); err != nil || again != 0 {
		t.Fatalf("second pass = (%d, %v), want (0, nil)", again, err)
	}
}
