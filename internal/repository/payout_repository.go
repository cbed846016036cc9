package repository

import (
	"errors"
	"time"

	"github.com/payhub-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutRepository 打款批次数据访问接口
type PayoutRepository interface {
	Create(batch *models.PayoutBatch) error
	Update(batch *models.PayoutBatch) error
	GetByID(id uint) (*models.PayoutBatch, error)
	GetByIDForUpdate(id uint) (*models.PayoutBatch, error)
	List(filter PayoutListFilter) ([]models.PayoutBatch, int64, error)
	ListDue(now time.Time, limit int) ([]models.PayoutBatch, error)
	HasOpenBatch(storeID uint) (bool, error)
	CreateEntries(entries []models.PayoutBatchEntry) error
	ListUnbatchedMaturations(storeID uint) ([]models.LedgerEntry, error)
	WithTx(tx *gorm.DB) *GormPayoutRepository
}

// GormPayoutRepository GORM 打款批次仓储实现
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建打款批次仓储
func NewPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) *GormPayoutRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutRepository{db: tx}
}

// Create 创建打款批次
func (r *GormPayoutRepository) Create(batch *models.PayoutBatch) error {
	return r.db.Create(batch).Error
}

// Update 更新打款批次
func (r *GormPayoutRepository) Update(batch *models.PayoutBatch) error {
	return r.db.Save(batch).Error
}

// GetByID 按ID获取打款批次
func (r *GormPayoutRepository) GetByID(id uint) (*models.PayoutBatch, error) {
	if id == 0 {
		return nil, nil
	}
	var batch models.PayoutBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetByIDForUpdate 按ID加锁获取打款批次
func (r *GormPayoutRepository) GetByIDForUpdate(id uint) (*models.PayoutBatch, error) {
	if id == 0 {
		return nil, nil
	}
	var batch models.PayoutBatch
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// List 分页查询打款批次
func (r *GormPayoutRepository) List(filter PayoutListFilter) ([]models.PayoutBatch, int64, error) {
	query := r.db.Model(&models.PayoutBatch{})
	if filter.StoreID != 0 {
		query = query.Where("store_id = ?", filter.StoreID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
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

	var batches []models.PayoutBatch
	if err := query.Order("id desc").Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// ListDue 查询到达重试时间的待结算批次
func (r *GormPayoutRepository) ListDue(now time.Time, limit int) ([]models.PayoutBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	var batches []models.PayoutBatch
	if err := r.db.Where("status = ?", "SCHEDULED").
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("id asc").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// HasOpenBatch 判断店铺是否已有未结算批次
func (r *GormPayoutRepository) HasOpenBatch(storeID uint) (bool, error) {
	if storeID == 0 {
		return false, nil
	}
	var count int64
	if err := r.db.Model(&models.PayoutBatch{}).
		Where("store_id = ? AND status = ?", storeID, "SCHEDULED").
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateEntries 批量写入批次与分录的关联
func (r *GormPayoutRepository) CreateEntries(entries []models.PayoutBatchEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.Create(&entries).Error
}

// ListUnbatchedMaturations 查询店铺尚未归入任何批次的成熟分录
func (r *GormPayoutRepository) ListUnbatchedMaturations(storeID uint) ([]models.LedgerEntry, error) {
	if storeID == 0 {
		return []models.LedgerEntry{}, nil
	}
	var entries []models.LedgerEntry
	if err := r.db.Model(&models.LedgerEntry{}).
		Where("entry_type = ? AND store_id = ?", "MATURATION", storeID).
		Where("id NOT IN (?)", r.db.Model(&models.PayoutBatchEntry{}).Select("ledger_entry_id")).
		Order("id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
