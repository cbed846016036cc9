package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/payhub-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrIdempotencyDuplicate 幂等记录已存在（并发首次请求竞争失败）
var ErrIdempotencyDuplicate = errors.New("idempotency record already exists")

// IdempotencyRepository 幂等记录数据访问接口
type IdempotencyRepository interface {
	Insert(record *models.IdempotencyRecord) error
	Get(operation, key string) (*models.IdempotencyRecord, error)
	GetForUpdate(operation, key string) (*models.IdempotencyRecord, error)
	Update(record *models.IdempotencyRecord) error
	Delete(record *models.IdempotencyRecord) error
	PurgeExpired(before time.Time, limit int) (int64, error)
	WithTx(tx *gorm.DB) *GormIdempotencyRepository
}

// GormIdempotencyRepository GORM 幂等记录仓储实现
type GormIdempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository 创建幂等记录仓储
func NewIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

// WithTx 绑定事务
func (r *GormIdempotencyRepository) WithTx(tx *gorm.DB) *GormIdempotencyRepository {
	if tx == nil {
		return r
	}
	return &GormIdempotencyRepository{db: tx}
}

// Insert 插入幂等记录，(operation, key) 冲突时返回 ErrIdempotencyDuplicate
func (r *GormIdempotencyRepository) Insert(record *models.IdempotencyRecord) error {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "operation"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIdempotencyDuplicate
	}
	return nil
}

// Get 按操作与幂等键获取记录
func (r *GormIdempotencyRepository) Get(operation, key string) (*models.IdempotencyRecord, error) {
	operation = strings.TrimSpace(operation)
	key = strings.TrimSpace(key)
	if operation == "" || key == "" {
		return nil, nil
	}
	var record models.IdempotencyRecord
	if err := r.db.Where("operation = ? AND idempotency_key = ?", operation, key).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetForUpdate 按操作与幂等键加锁获取记录
func (r *GormIdempotencyRepository) GetForUpdate(operation, key string) (*models.IdempotencyRecord, error) {
	operation = strings.TrimSpace(operation)
	key = strings.TrimSpace(key)
	if operation == "" || key == "" {
		return nil, nil
	}
	var record models.IdempotencyRecord
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("operation = ? AND idempotency_key = ?", operation, key).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Update 更新幂等记录
func (r *GormIdempotencyRepository) Update(record *models.IdempotencyRecord) error {
	return r.db.Save(record).Error
}

// Delete 删除幂等记录（首次请求失败后释放幂等键）
func (r *GormIdempotencyRepository) Delete(record *models.IdempotencyRecord) error {
	if record == nil || record.ID == 0 {
		return nil
	}
	return r.db.Delete(record).Error
}

// PurgeExpired 批量清理过期的幂等记录
func (r *GormIdempotencyRepository) PurgeExpired(before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	var ids []uint
	if err := r.db.Model(&models.IdempotencyRecord{}).
		Where("expires_at <= ?", before).
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Where("id IN ?", ids).Delete(&models.IdempotencyRecord{})
	return result.RowsAffected, result.Error
}
