package repository

import (
	"errors"
	"strings"

	"github.com/payhub-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrIntentVersionConflict 乐观锁版本冲突
var ErrIntentVersionConflict = errors.New("payment intent version conflict")

// IntentRepository 支付意向数据访问接口
type IntentRepository interface {
	Create(intent *models.PaymentIntent) error
	GetByID(id uint) (*models.PaymentIntent, error)
	GetByIDForUpdate(id uint) (*models.PaymentIntent, error)
	GetByIntentNo(intentNo string) (*models.PaymentIntent, error)
	GetByPSPReference(pspName, pspReferenceID string) (*models.PaymentIntent, error)
	UpdateWithVersion(intent *models.PaymentIntent) error
	List(filter IntentListFilter) ([]models.PaymentIntent, int64, error)
	ListExpired(limit int) ([]models.PaymentIntent, error)
	WithTx(tx *gorm.DB) *GormIntentRepository
}

// GormIntentRepository GORM 支付意向仓储实现
type GormIntentRepository struct {
	db *gorm.DB
}

// NewIntentRepository 创建支付意向仓储
func NewIntentRepository(db *gorm.DB) *GormIntentRepository {
	return &GormIntentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormIntentRepository) WithTx(tx *gorm.DB) *GormIntentRepository {
	if tx == nil {
		return r
	}
	return &GormIntentRepository{db: tx}
}

// Create 创建支付意向
func (r *GormIntentRepository) Create(intent *models.PaymentIntent) error {
	return r.db.Create(intent).Error
}

// GetByID 按ID获取支付意向
func (r *GormIntentRepository) GetByID(id uint) (*models.PaymentIntent, error) {
	if id == 0 {
		return nil, nil
	}
	var intent models.PaymentIntent
	if err := r.db.First(&intent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// GetByIDForUpdate 按ID加锁获取支付意向
func (r *GormIntentRepository) GetByIDForUpdate(id uint) (*models.PaymentIntent, error) {
	if id == 0 {
		return nil, nil
	}
	var intent models.PaymentIntent
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&intent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// GetByIntentNo 按意向号获取支付意向
func (r *GormIntentRepository) GetByIntentNo(intentNo string) (*models.PaymentIntent, error) {
	intentNo = strings.TrimSpace(intentNo)
	if intentNo == "" {
		return nil, nil
	}
	var intent models.PaymentIntent
	if err := r.db.Where("intent_no = ?", intentNo).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// GetByPSPReference 按提供方流水号获取支付意向
func (r *GormIntentRepository) GetByPSPReference(pspName, pspReferenceID string) (*models.PaymentIntent, error) {
	pspReferenceID = strings.TrimSpace(pspReferenceID)
	if pspName == "" || pspReferenceID == "" {
		return nil, nil
	}
	var intent models.PaymentIntent
	if err := r.db.Where("psp_name = ? AND psp_reference_id = ?", pspName, pspReferenceID).
		First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// UpdateWithVersion 带乐观锁更新支付意向，版本不匹配返回 ErrIntentVersionConflict
func (r *GormIntentRepository) UpdateWithVersion(intent *models.PaymentIntent) error {
	currentVersion := intent.Version
	intent.Version = currentVersion + 1
	result := r.db.Model(&models.PaymentIntent{}).
		Where("id = ? AND version = ?", intent.ID, currentVersion).
		Select("status", "psp_reference_id", "captured_amount", "refunded_amount",
			"version", "authorized_at", "captured_at", "expires_at", "updated_at").
		Updates(intent)
	if result.Error != nil {
		intent.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		intent.Version = currentVersion
		return ErrIntentVersionConflict
	}
	return nil
}

// List 分页查询支付意向
func (r *GormIntentRepository) List(filter IntentListFilter) ([]models.PaymentIntent, int64, error) {
	query := r.db.Model(&models.PaymentIntent{})
	if filter.StoreID != 0 {
		query = query.Where("store_id = ?", filter.StoreID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PSPName != "" {
		query = query.Where("psp_name = ?", filter.PSPName)
	}
	if filter.IntentNo != "" {
		query = query.Where("intent_no LIKE ?", "%"+filter.IntentNo+"%")
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

	var intents []models.PaymentIntent
	if err := query.Order("id desc").Find(&intents).Error; err != nil {
		return nil, 0, err
	}
	return intents, total, nil
}

// ListExpired 查询授权已过期但仍未捕获的支付意向
func (r *GormIntentRepository) ListExpired(limit int) ([]models.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	var intents []models.PaymentIntent
	if err := r.db.Where("status IN ?", []string{"CREATED", "AUTHORIZED"}).
		Where("expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP").
		Limit(limit).
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}
