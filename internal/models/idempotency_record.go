package models

import (
	"time"
)

// IdempotencyRecord 幂等请求记录
//
// (operation, idempotency_key) 组合唯一。IN_PROGRESS 表示首次请求仍在
// 处理中，COMPLETED 的记录缓存响应快照，过期后由后台任务清理。
type IdempotencyRecord struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                        // 主键
	Operation      string    `gorm:"uniqueIndex:idx_idem_op_key;not null" json:"operation"`       // 操作类型
	IdempotencyKey string    `gorm:"uniqueIndex:idx_idem_op_key;not null" json:"idempotency_key"` // 幂等键
	RequestHash    string    `gorm:"not null" json:"request_hash"`                                // 请求参数摘要
	Status         string    `gorm:"index;not null" json:"status"`                                // IN_PROGRESS/COMPLETED
	ResponseBody   JSON      `gorm:"type:json" json:"response_body"`                              // 缓存的响应快照
	ExpiresAt      time.Time `gorm:"index;not null" json:"expires_at"`                            // 过期时间
	CreatedAt      time.Time `json:"created_at"`                                                  // 创建时间
	UpdatedAt      time.Time `json:"updated_at"`                                                  // 更新时间
}

// TableName 指定表名
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
