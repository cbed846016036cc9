package models

import (
	"errors"
	"slices"
	"time"

	"github.com/payhub-next/internal/constants"
)

// ErrIntentInvalidTransition 非法的状态迁移
var ErrIntentInvalidTransition = errors.New("payment intent: invalid status transition")

// ErrIntentAmountInvariant 金额不变量被破坏（refunded ≤ captured ≤ amount）
var ErrIntentAmountInvariant = errors.New("payment intent: amount invariant violated")

// PaymentIntent 支付意向
//
// 状态机：CREATED → AUTHORIZED → CAPTURED ⇄ PARTIALLY_REFUNDED → REFUNDED，
// CREATED/AUTHORIZED 可进入终态 FAILED。状态只允许经由编排器操作或
// 已验签的 PSP 回调事件推进。
type PaymentIntent struct {
	ID             uint       `gorm:"primarykey" json:"id"`                      // 主键
	IntentNo       string     `gorm:"uniqueIndex;not null" json:"intent_no"`     // 对外意向号
	StoreID        uint       `gorm:"index;not null" json:"store_id"`            // 店铺ID
	Amount         int64      `gorm:"not null" json:"amount"`                    // 订单金额（最小货币单位）
	Currency       string     `gorm:"not null" json:"currency"`                  // 币种
	PSPName        string     `gorm:"index;not null" json:"psp_name"`            // 支付提供方（cardnet/debitrail/regiowallet）
	PSPReferenceID string     `gorm:"index" json:"psp_reference_id"`             // PSP 侧流水号
	Status         string     `gorm:"index;not null" json:"status"`              // 意向状态
	CapturedAmount int64      `gorm:"not null;default:0" json:"captured_amount"` // 已捕获金额
	RefundedAmount int64      `gorm:"not null;default:0" json:"refunded_amount"` // 已退款金额
	Version        int64      `gorm:"not null;default:0" json:"-"`               // 乐观锁版本号
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt      time.Time  `gorm:"index" json:"updated_at"`                   // 更新时间
	AuthorizedAt   *time.Time `json:"authorized_at"`                             // 授权时间
	CapturedAt     *time.Time `gorm:"index" json:"captured_at"`                  // 捕获时间
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at"`                   // 授权过期时间
}

// TableName 指定表名
func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// Refundable 判断当前状态是否接受退款
func (p *PaymentIntent) Refundable() bool {
	return p.Status == constants.IntentStatusCaptured ||
		p.Status == constants.IntentStatusPartiallyRefunded
}

// RemainingRefundable 返回剩余可退金额
func (p *PaymentIntent) RemainingRefundable() int64 {
	return p.CapturedAmount - p.RefundedAmount
}

// MarkAuthorized 记录授权结果
func (p *PaymentIntent) MarkAuthorized(pspReferenceID string, authorizedAt time.Time, expiresAt *time.Time) error {
	if err := p.transition(constants.IntentStatusAuthorized); err != nil {
		return err
	}
	p.PSPReferenceID = pspReferenceID
	p.AuthorizedAt = &authorizedAt
	p.ExpiresAt = expiresAt
	return nil
}

// MarkCaptured 记录捕获结果
func (p *PaymentIntent) MarkCaptured(capturedAmount int64, capturedAt time.Time) error {
	if capturedAmount <= 0 || capturedAmount > p.Amount {
		return ErrIntentAmountInvariant
	}
	if err := p.transition(constants.IntentStatusCaptured); err != nil {
		return err
	}
	p.CapturedAmount = capturedAmount
	p.CapturedAt = &capturedAt
	return nil
}

// MarkFailed 进入终态 FAILED
func (p *PaymentIntent) MarkFailed() error {
	return p.transition(constants.IntentStatusFailed)
}

// ApplyRefund 在意向上记入一笔退款金额并推进状态
func (p *PaymentIntent) ApplyRefund(amount int64) error {
	if amount <= 0 || amount > p.RemainingRefundable() {
		return ErrIntentAmountInvariant
	}
	refunded := p.RefundedAmount + amount
	target := constants.IntentStatusPartiallyRefunded
	if refunded == p.CapturedAmount {
		target = constants.IntentStatusRefunded
	}
	if err := p.transition(target); err != nil {
		return err
	}
	p.RefundedAmount = refunded
	return nil
}

func (p *PaymentIntent) transition(target string) error {
	if err := p.canTransitionTo(target); err != nil {
		return err
	}
	p.Status = target
	return nil
}

func (p *PaymentIntent) canTransitionTo(target string) error {
	switch p.Status {
	case constants.IntentStatusCreated:
		return p.allow(target, constants.IntentStatusAuthorized, constants.IntentStatusFailed)
	case constants.IntentStatusAuthorized:
		return p.allow(target, constants.IntentStatusCaptured, constants.IntentStatusFailed)
	case constants.IntentStatusCaptured:
		return p.allow(target, constants.IntentStatusPartiallyRefunded, constants.IntentStatusRefunded)
	case constants.IntentStatusPartiallyRefunded:
		return p.allow(target, constants.IntentStatusPartiallyRefunded, constants.IntentStatusRefunded)
	}
	return ErrIntentInvalidTransition
}

func (p *PaymentIntent) allow(target string, allowed ...string) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return ErrIntentInvalidTransition
}
