package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/payhub-next/internal/models"

	"gorm.io/gorm"
)

// OperatorRepository 操作员数据访问接口
type OperatorRepository interface {
	GetByID(id uint) (*models.Operator, error)
	GetByUsername(username string) (*models.Operator, error)
	UpdateLastLogin(id uint, at time.Time) error
	WithTx(tx *gorm.DB) *GormOperatorRepository
}

// GormOperatorRepository GORM 操作员仓储实现
type GormOperatorRepository struct {
	db *gorm.DB
}

// NewOperatorRepository 创建操作员仓储
func NewOperatorRepository(db *gorm.DB) *GormOperatorRepository {
	return &GormOperatorRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOperatorRepository) WithTx(tx *gorm.DB) *GormOperatorRepository {
	if tx == nil {
		return r
	}
	return &GormOperatorRepository{db: tx}
}

// GetByID 按ID获取操作员
func (r *GormOperatorRepository) GetByID(id uint) (*models.Operator, error) {
	if id == 0 {
		return nil, nil
	}
	var operator models.Operator
	if err := r.db.First(&operator, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &operator, nil
}

// GetByUsername 按用户名获取操作员
func (r *GormOperatorRepository) GetByUsername(username string) (*models.Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	var operator models.Operator
	if err := r.db.Where("username = ?", username).First(&operator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &operator, nil
}

// UpdateLastLogin 更新最近登录时间
func (r *GormOperatorRepository) UpdateLastLogin(id uint, at time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Operator{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}
