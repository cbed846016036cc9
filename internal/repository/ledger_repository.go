package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"

	"gorm.io/gorm"
)

// ErrLedgerEntryInvalid 分录不合法（金额非正、借贷同户或事务ID缺失）
var ErrLedgerEntryInvalid = errors.New("ledger entry invalid")

// ErrLedgerImbalance 同一业务事务内借贷不平衡或币种混用
var ErrLedgerImbalance = errors.New("ledger transaction imbalanced")

// 账户命名约定
const (
	AccountPlatformFees = "platform:fees"
	AccountBankPayout   = "bank:payout"
)

// StoreAccount 店铺余额桶账户名（store:<id>:pending / store:<id>:available）
func StoreAccount(storeID uint, bucket string) string {
	return fmt.Sprintf("store:%d:%s", storeID, bucket)
}

// PSPSettlementAccount PSP 结算账户名
func PSPSettlementAccount(pspName string) string {
	return fmt.Sprintf("psp:%s:settlement", pspName)
}

// LedgerRepository 复式账簿数据访问接口
type LedgerRepository interface {
	Record(entries []models.LedgerEntry) error
	Balance(account string) (int64, error)
	GetByID(id uint) (*models.LedgerEntry, error)
	GetByTransactionID(transactionID string) ([]models.LedgerEntry, error)
	GetCaptureByIntent(intentID uint) (*models.LedgerEntry, error)
	List(filter LedgerEntryListFilter) ([]models.LedgerEntry, int64, error)
	ListMaturableCaptures(storeID uint, before time.Time, limit int) ([]models.LedgerEntry, error)
	MaturationExists(captureEntryID uint) (bool, error)
	SumByTransactionAndType(transactionID, entryType string) (int64, error)
	SumRefundsDebiting(intentID uint, debitAccount string) (int64, error)
	WithTx(tx *gorm.DB) *GormLedgerRepository
}

// GormLedgerRepository GORM 账簿仓储实现
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建账簿仓储
func NewLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) *GormLedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLedgerRepository{db: tx}
}

// Record 在单个事务内落库一组分录，任一分录不合法则整组拒绝
func (r *GormLedgerRepository) Record(entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			return err
		}
	}
	if err := r.checkTransactionCurrency(entries); err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range entries {
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// checkTransactionCurrency 同一业务事务的分录必须同币种。分录以借贷
// 成对的行落库，单条金额即同时计入借方与贷方，借贷合计天然相等，
// 不平衡只会以币种混用的形式出现。既有分录也参与比对，跨批次追加
// 同样受约束。
func (r *GormLedgerRepository) checkTransactionCurrency(entries []models.LedgerEntry) error {
	currencies := make(map[string]string, len(entries))
	for i := range entries {
		currency := strings.TrimSpace(entries[i].Currency)
		if currency == "" {
			return fmt.Errorf("%w: missing currency", ErrLedgerEntryInvalid)
		}
		txnID := entries[i].TransactionID
		if seen, ok := currencies[txnID]; ok && seen != currency {
			logger.Errorw("ledger_imbalance_rejected",
				"transaction_id", txnID,
				"currency", currency,
				"expected", seen,
			)
			return fmt.Errorf("%w: mixed currencies in transaction %s", ErrLedgerImbalance, txnID)
		}
		currencies[txnID] = currency
	}
	for txnID, currency := range currencies {
		var existing models.LedgerEntry
		err := r.db.Where("transaction_id = ?", txnID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if existing.Currency != currency {
			logger.Errorw("ledger_imbalance_rejected",
				"transaction_id", txnID,
				"currency", currency,
				"expected", existing.Currency,
			)
			return fmt.Errorf("%w: mixed currencies in transaction %s", ErrLedgerImbalance, txnID)
		}
	}
	return nil
}

func validateEntry(entry *models.LedgerEntry) error {
	if entry.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrLedgerEntryInvalid)
	}
	if strings.TrimSpace(entry.TransactionID) == "" {
		return fmt.Errorf("%w: missing transaction id", ErrLedgerEntryInvalid)
	}
	debit := strings.TrimSpace(entry.DebitAccount)
	credit := strings.TrimSpace(entry.CreditAccount)
	if debit == "" || credit == "" {
		return fmt.Errorf("%w: missing account", ErrLedgerEntryInvalid)
	}
	if debit == credit {
		return fmt.Errorf("%w: debit and credit account must differ", ErrLedgerEntryInvalid)
	}
	return nil
}

// Balance 计算账户余额（贷方合计减借方合计，店铺余额桶为负债类账户）
func (r *GormLedgerRepository) Balance(account string) (int64, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return 0, nil
	}
	var credit, debit int64
	if err := r.db.Model(&models.LedgerEntry{}).
		Where("credit_account = ?", account).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&credit).Error; err != nil {
		return 0, err
	}
	if err := r.db.Model(&models.LedgerEntry{}).
		Where("debit_account = ?", account).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&debit).Error; err != nil {
		return 0, err
	}
	return credit - debit, nil
}

// GetByID 按ID获取分录
func (r *GormLedgerRepository) GetByID(id uint) (*models.LedgerEntry, error) {
	if id == 0 {
		return nil, nil
	}
	var entry models.LedgerEntry
	if err := r.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// GetByTransactionID 按业务事务ID获取分录组
func (r *GormLedgerRepository) GetByTransactionID(transactionID string) ([]models.LedgerEntry, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return []models.LedgerEntry{}, nil
	}
	var entries []models.LedgerEntry
	if err := r.db.Where("transaction_id = ?", transactionID).
		Order("id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetCaptureByIntent 按意向ID获取捕获分录
func (r *GormLedgerRepository) GetCaptureByIntent(intentID uint) (*models.LedgerEntry, error) {
	if intentID == 0 {
		return nil, nil
	}
	var entry models.LedgerEntry
	if err := r.db.Where("intent_id = ? AND entry_type = ?", intentID, "CAPTURE").
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// List 分页查询分录
func (r *GormLedgerRepository) List(filter LedgerEntryListFilter) ([]models.LedgerEntry, int64, error) {
	query := r.db.Model(&models.LedgerEntry{})
	if filter.StoreID != 0 {
		query = query.Where("store_id = ?", filter.StoreID)
	}
	if filter.IntentID != 0 {
		query = query.Where("intent_id = ?", filter.IntentID)
	}
	if filter.EntryType != "" {
		query = query.Where("entry_type = ?", filter.EntryType)
	}
	if filter.Account != "" {
		query = query.Where("debit_account = ? OR credit_account = ?", filter.Account, filter.Account)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var entries []models.LedgerEntry
	if err := query.Order("id desc").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListMaturableCaptures 查询已过持有期且尚未成熟的捕获分录
func (r *GormLedgerRepository) ListMaturableCaptures(storeID uint, before time.Time, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	query := r.db.Model(&models.LedgerEntry{}).
		Where("entry_type = ?", "CAPTURE").
		Where("created_at <= ?", before).
		Where("id NOT IN (?)", r.db.Model(&models.LedgerEntry{}).
			Select("capture_entry_id").
			Where("entry_type = ? AND capture_entry_id > 0", "MATURATION"))
	if storeID != 0 {
		query = query.Where("store_id = ?", storeID)
	}
	var entries []models.LedgerEntry
	if err := query.Order("id asc").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// SumByTransactionAndType 汇总某业务事务下指定类型分录的金额
func (r *GormLedgerRepository) SumByTransactionAndType(transactionID, entryType string) (int64, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.LedgerEntry{}).
		Where("transaction_id = ? AND entry_type = ?", transactionID, entryType).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// SumRefundsDebiting 汇总某意向下从指定账户借记的退款分录金额
func (r *GormLedgerRepository) SumRefundsDebiting(intentID uint, debitAccount string) (int64, error) {
	if intentID == 0 || strings.TrimSpace(debitAccount) == "" {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.LedgerEntry{}).
		Where("intent_id = ? AND entry_type = ? AND debit_account = ?", intentID, "REFUND", debitAccount).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// MaturationExists 判断捕获分录是否已有对应的成熟分录
func (r *GormLedgerRepository) MaturationExists(captureEntryID uint) (bool, error) {
	if captureEntryID == 0 {
		return false, nil
	}
	var count int64
	if err := r.db.Model(&models.LedgerEntry{}).
		Where("entry_type = ? AND capture_entry_id = ?", "MATURATION", captureEntryID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
