package repository

import (
	"errors"
	"strings"

	"github.com/payhub-next/internal/models"

	"gorm.io/gorm"
)

// RefundRepository 退款数据访问接口
type RefundRepository interface {
	Create(refund *models.Refund) error
	Update(refund *models.Refund) error
	GetByID(id uint) (*models.Refund, error)
	GetByRefundNo(refundNo string) (*models.Refund, error)
	GetByIntentAndKey(intentID uint, idempotencyKey string) (*models.Refund, error)
	ListPendingByIntent(intentID uint) ([]models.Refund, error)
	List(filter RefundListFilter) ([]models.Refund, int64, error)
	SumSucceededByIntent(intentID uint) (int64, error)
	WithTx(tx *gorm.DB) *GormRefundRepository
}

// GormRefundRepository GORM 退款仓储实现
type GormRefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository 创建退款仓储
func NewRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefundRepository) WithTx(tx *gorm.DB) *GormRefundRepository {
	if tx == nil {
		return r
	}
	return &GormRefundRepository{db: tx}
}

// Create 创建退款记录
func (r *GormRefundRepository) Create(refund *models.Refund) error {
	return r.db.Create(refund).Error
}

// Update 更新退款记录
func (r *GormRefundRepository) Update(refund *models.Refund) error {
	return r.db.Save(refund).Error
}

// GetByID 按ID获取退款记录
func (r *GormRefundRepository) GetByID(id uint) (*models.Refund, error) {
	if id == 0 {
		return nil, nil
	}
	var refund models.Refund
	if err := r.db.First(&refund, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetByRefundNo 按退款单号获取退款记录
func (r *GormRefundRepository) GetByRefundNo(refundNo string) (*models.Refund, error) {
	refundNo = strings.TrimSpace(refundNo)
	if refundNo == "" {
		return nil, nil
	}
	var refund models.Refund
	if err := r.db.Where("refund_no = ?", refundNo).First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetByIntentAndKey 按意向与幂等键获取退款记录
func (r *GormRefundRepository) GetByIntentAndKey(intentID uint, idempotencyKey string) (*models.Refund, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if intentID == 0 || idempotencyKey == "" {
		return nil, nil
	}
	var refund models.Refund
	if err := r.db.Where("intent_id = ? AND idempotency_key = ?", intentID, idempotencyKey).
		Order("id DESC").
		First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// ListPendingByIntent 查询某意向下待确认的退款
func (r *GormRefundRepository) ListPendingByIntent(intentID uint) ([]models.Refund, error) {
	if intentID == 0 {
		return []models.Refund{}, nil
	}
	var refunds []models.Refund
	if err := r.db.Where("intent_id = ? AND status = ?", intentID, "PENDING_CONFIRMATION").
		Order("id asc").
		Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}

// List 分页查询退款记录
func (r *GormRefundRepository) List(filter RefundListFilter) ([]models.Refund, int64, error) {
	query := r.db.Model(&models.Refund{})
	if filter.IntentID != 0 {
		query = query.Where("intent_id = ?", filter.IntentID)
	}
	if filter.StoreID != 0 {
		query = query.Where("store_id = ?", filter.StoreID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OperatorID != 0 {
		query = query.Where("operator_id = ?", filter.OperatorID)
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

	var refunds []models.Refund
	if err := query.Order("id desc").Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}

// SumSucceededByIntent 汇总某意向下已成功的退款总额
func (r *GormRefundRepository) SumSucceededByIntent(intentID uint) (int64, error) {
	if intentID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.Refund{}).
		Where("intent_id = ? AND status = ?", intentID, "SUCCEEDED").
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
