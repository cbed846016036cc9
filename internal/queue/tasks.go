package queue

import (
	"encoding/json"

	"github.com/payhub-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskMaturationScan 资金成熟扫描任务
	TaskMaturationScan = constants.TaskMaturationScan
	// TaskPayoutSchedule 打款批次生成任务
	TaskPayoutSchedule = constants.TaskPayoutSchedule
	// TaskPayoutSettle 打款批次结算任务
	TaskPayoutSettle = constants.TaskPayoutSettle
	// TaskIntentExpire 过期意向清理任务
	TaskIntentExpire = constants.TaskIntentExpire
	// TaskIdempotencyPurge 过期幂等记录清理任务
	TaskIdempotencyPurge = constants.TaskIdempotencyPurge
)

// ScanPayload 扫描类任务载荷
type ScanPayload struct {
	Limit int `json:"limit"`
}

// PayoutSettlePayload 打款结算任务载荷，BatchID 为 0 时结算全部到期批次
type PayoutSettlePayload struct {
	BatchID uint `json:"batch_id"`
	Limit   int  `json:"limit"`
}

// NewMaturationScanTask 创建资金成熟扫描任务
func NewMaturationScanTask(payload ScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaturationScan, body), nil
}

// NewPayoutScheduleTask 创建打款批次生成任务
func NewPayoutScheduleTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskPayoutSchedule, nil), nil
}

// NewPayoutSettleTask 创建打款批次结算任务
func NewPayoutSettleTask(payload PayoutSettlePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutSettle, body), nil
}

// NewIntentExpireTask 创建过期意向清理任务
func NewIntentExpireTask(payload ScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntentExpire, body), nil
}

// NewIdempotencyPurgeTask 创建过期幂等记录清理任务
func NewIdempotencyPurgeTask(payload ScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyPurge, body), nil
}
