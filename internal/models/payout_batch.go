package models

import (
	"time"
)

// PayoutBatch 打款批次
//
// 调度器按店铺归集已成熟的可用余额生成批次，经银行通道转账后记入
// PAYOUT 分录。转账失败的批次按指数退避重试，超限后转入 FAILED 等待
// 人工介入。
type PayoutBatch struct {
	ID            uint       `gorm:"primarykey" json:"id"`                 // 主键
	BatchNo       string     `gorm:"uniqueIndex;not null" json:"batch_no"` // 批次号（银行侧幂等令牌）
	StoreID       uint       `gorm:"index;not null" json:"store_id"`       // 店铺ID
	BankAccountID uint       `gorm:"not null" json:"bank_account_id"`      // 收款银行账户ID
	Amount        int64      `gorm:"not null" json:"amount"`               // 打款金额（最小货币单位）
	Currency      string     `gorm:"not null" json:"currency"`             // 币种
	Status        string     `gorm:"index;not null" json:"status"`         // SCHEDULED/SETTLED/FAILED
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`   // 已尝试次数
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at"`         // 下次重试时间
	FailureReason string     `json:"failure_reason"`                       // 最近一次失败原因
	TransferRef   string     `gorm:"index" json:"transfer_ref"`            // 银行侧转账流水号
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`              // 创建时间
	UpdatedAt     time.Time  `json:"updated_at"`                           // 更新时间
	SettledAt     *time.Time `json:"settled_at"`                           // 到账时间
}

// TableName 指定表名
func (PayoutBatch) TableName() string {
	return "payout_batches"
}

// PayoutBatchEntry 打款批次与账簿分录的关联
type PayoutBatchEntry struct {
	ID            uint      `gorm:"primarykey" json:"id"`                  // 主键
	BatchID       uint      `gorm:"index;not null" json:"batch_id"`        // 批次ID
	LedgerEntryID uint      `gorm:"index;not null" json:"ledger_entry_id"` // 账簿分录ID
	CreatedAt     time.Time `json:"created_at"`                            // 创建时间
}

// TableName 指定表名
func (PayoutBatchEntry) TableName() string {
	return "payout_batch_entries"
}
