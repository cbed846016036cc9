package models

import (
	"time"

	"gorm.io/gorm"
)

// Store 商户店铺
type Store struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                 // 主键
	Name            string         `gorm:"not null" json:"name"`                                 // 店铺名称
	Currency        string         `gorm:"not null" json:"currency"`                             // 结算币种
	FeeRate         Rate           `gorm:"type:decimal(6,2);not null;default:0" json:"fee_rate"` // 平台手续费比例（百分比）
	MinPayoutAmount int64          `gorm:"not null;default:0" json:"min_payout_amount"`          // 最低打款金额（0 使用全局配置）
	IsActive        bool           `gorm:"not null;default:true" json:"is_active"`               // 是否启用
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                              // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                              // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                       // 软删除时间
}

// TableName 指定表名
func (Store) TableName() string {
	return "stores"
}

// StoreBankAccount 店铺收款银行账户
type StoreBankAccount struct {
	ID            uint       `gorm:"primarykey" json:"id"`                               // 主键
	StoreID       uint       `gorm:"index;not null" json:"store_id"`                     // 店铺ID
	HolderName    string     `gorm:"not null" json:"holder_name"`                        // 户名
	BankCode      string     `gorm:"not null" json:"bank_code"`                          // 银行代码
	AccountNumber string     `gorm:"not null" json:"account_number"`                     // 账号
	KYCStatus     string     `gorm:"index;not null;default:'PENDING'" json:"kyc_status"` // KYC 状态（PENDING/VERIFIED/REJECTED）
	VerifiedAt    *time.Time `json:"verified_at"`                                        // 通过时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt     time.Time  `gorm:"index" json:"updated_at"`                            // 更新时间
}

// TableName 指定表名
func (StoreBankAccount) TableName() string {
	return "store_bank_accounts"
}
