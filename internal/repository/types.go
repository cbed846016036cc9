package repository

import "time"

// IntentListFilter 查询支付意向列表的过滤条件
type IntentListFilter struct {
	Page        int
	PageSize    int
	StoreID     uint
	Status      string
	PSPName     string
	IntentNo    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// RefundListFilter 查询退款列表的过滤条件
type RefundListFilter struct {
	Page        int
	PageSize    int
	IntentID    uint
	StoreID     uint
	Status      string
	OperatorID  uint
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// LedgerEntryListFilter 查询账簿分录列表的过滤条件
type LedgerEntryListFilter struct {
	Page        int
	PageSize    int
	StoreID     uint
	IntentID    uint
	EntryType   string
	Account     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// PayoutListFilter 查询打款批次列表的过滤条件
type PayoutListFilter struct {
	Page        int
	PageSize    int
	StoreID     uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
