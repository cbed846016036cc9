package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"

	"gorm.io/gorm"
)

// IdempotencyGuard 幂等守卫
//
// 同一 (operation, key) 的首次请求插入 IN_PROGRESS 记录并继续执行；
// 参数一致的重复请求直接返回缓存结果；参数不一致或首次请求仍在
// 执行中的并发重复，一律拒绝为 ErrIdempotencyConflict。
type IdempotencyGuard struct {
	idemRepo repository.IdempotencyRepository
	ttl      time.Duration
}

// NewIdempotencyGuard 创建幂等守卫
func NewIdempotencyGuard(idemRepo repository.IdempotencyRepository, ttlHours int) *IdempotencyGuard {
	if ttlHours <= 0 {
		ttlHours = 48
	}
	return &IdempotencyGuard{
		idemRepo: idemRepo,
		ttl:      time.Duration(ttlHours) * time.Hour,
	}
}

// HashRequest 计算请求参数摘要，幂等比对只看摘要不存原文
func HashRequest(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v|", part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin 申领幂等键
//
// 返回值：record 为本次持有的 IN_PROGRESS 记录；cached 非空表示命中
// 先前已完成的同参数请求，调用方直接返回缓存结果即可。
func (g *IdempotencyGuard) Begin(operation, key, requestHash string) (record *models.IdempotencyRecord, cached models.JSON, err error) {
	existing, err := g.idemRepo.Get(operation, key)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		// 过期记录视同不存在
		if time.Now().After(existing.ExpiresAt) {
			if err := g.idemRepo.Delete(existing); err != nil {
				return nil, nil, err
			}
		} else {
			if existing.RequestHash != requestHash {
				return nil, nil, ErrIdempotencyConflict
			}
			if existing.Status == constants.IdempotencyStatusCompleted {
				return nil, existing.ResponseBody, nil
			}
			// IN_PROGRESS：并发重复快速失败，避免与首次请求竞速
			return nil, nil, ErrIdempotencyConflict
		}
	}

	fresh := &models.IdempotencyRecord{
		Operation:      operation,
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Status:         constants.IdempotencyStatusInProgress,
		ExpiresAt:      time.Now().Add(g.ttl),
	}
	if err := g.idemRepo.Insert(fresh); err != nil {
		if errors.Is(err, repository.ErrIdempotencyDuplicate) {
			return nil, nil, ErrIdempotencyConflict
		}
		return nil, nil, err
	}
	return fresh, nil, nil
}

// Complete 标记请求完成并缓存响应快照
func (g *IdempotencyGuard) Complete(record *models.IdempotencyRecord, response models.JSON) error {
	if record == nil {
		return nil
	}
	record.Status = constants.IdempotencyStatusCompleted
	record.ResponseBody = response
	return g.idemRepo.Update(record)
}

// CompleteTx 在给定事务内标记请求完成
func (g *IdempotencyGuard) CompleteTx(tx *gorm.DB, record *models.IdempotencyRecord, response models.JSON) error {
	if record == nil {
		return nil
	}
	record.Status = constants.IdempotencyStatusCompleted
	record.ResponseBody = response
	return g.idemRepo.WithTx(tx).Update(record)
}

// Release 释放幂等键，允许客户端安全重试
func (g *IdempotencyGuard) Release(record *models.IdempotencyRecord) {
	if record == nil {
		return
	}
	if err := g.idemRepo.Delete(record); err != nil {
		logger.Errorw("idempotency_release_failed",
			"operation", record.Operation,
			"key", record.IdempotencyKey,
			"error", err,
		)
	}
}

// PurgeExpired 清理过期幂等记录
func (g *IdempotencyGuard) PurgeExpired(limit int) (int64, error) {
	return g.idemRepo.PurgeExpired(time.Now(), limit)
}
