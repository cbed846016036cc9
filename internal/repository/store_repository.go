package repository

import (
	"errors"

	"github.com/payhub-next/internal/models"

	"gorm.io/gorm"
)

// StoreRepository 店铺数据访问接口
type StoreRepository interface {
	Create(store *models.Store) error
	Update(store *models.Store) error
	GetByID(id uint) (*models.Store, error)
	ListActive() ([]models.Store, error)
	GetVerifiedBankAccount(storeID uint) (*models.StoreBankAccount, error)
	CreateBankAccount(account *models.StoreBankAccount) error
	WithTx(tx *gorm.DB) *GormStoreRepository
}

// GormStoreRepository GORM 店铺仓储实现
type GormStoreRepository struct {
	db *gorm.DB
}

// NewStoreRepository 创建店铺仓储
func NewStoreRepository(db *gorm.DB) *GormStoreRepository {
	return &GormStoreRepository{db: db}
}

// WithTx 绑定事务
func (r *GormStoreRepository) WithTx(tx *gorm.DB) *GormStoreRepository {
	if tx == nil {
		return r
	}
	return &GormStoreRepository{db: tx}
}

// Create 创建店铺
func (r *GormStoreRepository) Create(store *models.Store) error {
	return r.db.Create(store).Error
}

// Update 更新店铺
func (r *GormStoreRepository) Update(store *models.Store) error {
	return r.db.Save(store).Error
}

// GetByID 按ID获取店铺
func (r *GormStoreRepository) GetByID(id uint) (*models.Store, error) {
	if id == 0 {
		return nil, nil
	}
	var store models.Store
	if err := r.db.First(&store, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

// ListActive 查询启用中的店铺
func (r *GormStoreRepository) ListActive() ([]models.Store, error) {
	var stores []models.Store
	if err := r.db.Where("is_active = ?", true).Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}

// GetVerifiedBankAccount 获取店铺已通过 KYC 的收款账户
func (r *GormStoreRepository) GetVerifiedBankAccount(storeID uint) (*models.StoreBankAccount, error) {
	if storeID == 0 {
		return nil, nil
	}
	var account models.StoreBankAccount
	if err := r.db.Where("store_id = ? AND kyc_status = ?", storeID, "VERIFIED").
		Order("id desc").
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// CreateBankAccount 创建店铺收款账户
func (r *GormStoreRepository) CreateBankAccount(account *models.StoreBankAccount) error {
	return r.db.Create(account).Error
}
