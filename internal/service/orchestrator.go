package service

import (
	"context"

	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/psp"
	"github.com/payhub-next/internal/repository"
)

// Orchestrator 对外唯一编排入口
//
// 外部调用方不直接触碰各子服务，支付、退款、账簿与打款
// 的组合语义都从这里进出。
type Orchestrator struct {
	payment *PaymentService
	refund  *RefundService
	ledger  *LedgerService
	payout  *PayoutService
}

// NewOrchestrator 创建编排器
func NewOrchestrator(payment *PaymentService, refund *RefundService, ledger *LedgerService, payout *PayoutService) *Orchestrator {
	return &Orchestrator{
		payment: payment,
		refund:  refund,
		ledger:  ledger,
		payout:  payout,
	}
}

// CreateIntent 创建支付意向并发起授权
func (o *Orchestrator) CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error) {
	return o.payment.CreateIntent(ctx, input)
}

// GetIntent 查询支付意向
func (o *Orchestrator) GetIntent(id uint) (*models.PaymentIntent, error) {
	return o.payment.GetIntent(id)
}

// ListIntents 分页查询支付意向
func (o *Orchestrator) ListIntents(filter repository.IntentListFilter) ([]models.PaymentIntent, int64, error) {
	return o.payment.ListIntents(filter)
}

// HandleWebhook 处理 PSP 回调，捕获与退款确认都经由这里
func (o *Orchestrator) HandleWebhook(pspName string, verify func() (*psp.WebhookEvent, error)) error {
	return o.payment.HandleWebhook(pspName, verify)
}

// Refund 对支付意向发起退款
func (o *Orchestrator) Refund(ctx context.Context, intentID uint, input RefundInput, operatorID uint) (models.JSON, error) {
	return o.refund.Refund(ctx, intentID, input, operatorID)
}

// ListRefunds 查询意向的退款记录
func (o *Orchestrator) ListRefunds(intentID uint) ([]models.Refund, error) {
	return o.refund.ListRefunds(intentID)
}

// Balance 查询店铺余额
func (o *Orchestrator) Balance(storeID uint) (*StoreBalance, error) {
	return o.ledger.Balance(storeID)
}

// ListLedgerEntries 查询分录流水
func (o *Orchestrator) ListLedgerEntries(filter repository.LedgerEntryListFilter) ([]models.LedgerEntry, int64, error) {
	return o.ledger.ListEntries(filter)
}

// ListPayouts 查询打款批次
func (o *Orchestrator) ListPayouts(filter repository.PayoutListFilter) ([]models.PayoutBatch, int64, error) {
	return o.payout.ListBatches(filter)
}

// RetryPayout 人工重试失败批次
func (o *Orchestrator) RetryPayout(batchID uint) (*models.PayoutBatch, error) {
	return o.payout.RetryBatch(batchID)
}
