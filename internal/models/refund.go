package models

import (
	"time"
)

// Refund 退款记录
//
// RefundNo 在向 PSP 发起退款时作为提供方侧的幂等令牌传递，
// 保证同一笔退款重放不会在 PSP 侧重复扣款。
type Refund struct {
	ID             uint       `gorm:"primarykey" json:"id"`                  // 主键
	RefundNo       string     `gorm:"uniqueIndex;not null" json:"refund_no"` // 退款单号（PSP 幂等令牌）
	IntentID       uint       `gorm:"index;not null" json:"intent_id"`       // 所属支付意向ID
	StoreID        uint       `gorm:"index;not null" json:"store_id"`        // 店铺ID
	Amount         int64      `gorm:"not null" json:"amount"`                // 退款金额（最小货币单位）
	Status         string     `gorm:"index;not null" json:"status"`          // 退款状态
	Reason         string     `json:"reason"`                                // 退款原因
	OperatorID     uint       `gorm:"index" json:"operator_id"`              // 发起退款的操作员
	IdempotencyKey string     `gorm:"index" json:"idempotency_key"`          // 请求幂等键
	PSPRefundID    string     `gorm:"index" json:"psp_refund_id"`            // PSP 侧退款流水号
	FailureReason  string     `json:"failure_reason"`                        // 失败原因
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`               // 创建时间
	UpdatedAt      time.Time  `json:"updated_at"`                            // 更新时间
	CompletedAt    *time.Time `json:"completed_at"`                          // 完成时间
}

// TableName 指定表名
func (Refund) TableName() string {
	return "refunds"
}
