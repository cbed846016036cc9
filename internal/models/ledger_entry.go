package models

import (
	"time"
)

// LedgerEntry 复式账簿分录
//
// 分录只增不改：任何余额修正都通过追加新分录完成。同一 TransactionID
// 下的分录借贷必须严格相等，由账簿仓库在同一事务内校验后落库。
type LedgerEntry struct {
	ID             uint      `gorm:"primarykey" json:"id"`                 // 主键
	TransactionID  string    `gorm:"index;not null" json:"transaction_id"` // 业务事务ID（同组分录共享）
	EntryType      string    `gorm:"index;not null" json:"entry_type"`     // 分录类型（CAPTURE/REFUND/FEE/MATURATION/PAYOUT）
	DebitAccount   string    `gorm:"index;not null" json:"debit_account"`  // 借方账户
	CreditAccount  string    `gorm:"index;not null" json:"credit_account"` // 贷方账户
	Amount         int64     `gorm:"not null" json:"amount"`               // 金额（最小货币单位，恒为正）
	Currency       string    `gorm:"not null" json:"currency"`             // 币种
	StoreID        uint      `gorm:"index" json:"store_id"`                // 关联店铺ID
	IntentID       uint      `gorm:"index" json:"intent_id"`               // 关联支付意向ID
	RefundID       uint      `gorm:"index" json:"refund_id"`               // 关联退款ID
	CaptureEntryID uint      `gorm:"index" json:"capture_entry_id"`        // 成熟分录回指的捕获分录ID
	Memo           string    `json:"memo"`                                 // 摘要
	CreatedAt      time.Time `gorm:"index" json:"created_at"`              // 记账时间
}

// TableName 指定表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
