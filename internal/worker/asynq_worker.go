package worker

import (
	"context"
	"encoding/json"

	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/provider"
	"github.com/payhub-next/internal/queue"

	"github.com/hibiken/asynq"
)

const defaultScanLimit = 200

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskMaturationScan, c.handleMaturationScan)
	mux.HandleFunc(queue.TaskPayoutSchedule, c.handlePayoutSchedule)
	mux.HandleFunc(queue.TaskPayoutSettle, c.handlePayoutSettle)
	mux.HandleFunc(queue.TaskIntentExpire, c.handleIntentExpire)
	mux.HandleFunc(queue.TaskIdempotencyPurge, c.handleIdempotencyPurge)
}

func scanLimit(limit int) int {
	if limit <= 0 {
		return defaultScanLimit
	}
	return limit
}

func (c *Consumer) handleMaturationScan(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.ScanPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_maturation_scan_unmarshal_failed", "error", err)
			return err
		}
	}
	matured, err := c.LedgerService.MatureEligible(ctx, scanLimit(payload.Limit))
	if err != nil {
		logger.Warnw("worker_maturation_scan_failed", "matured", matured, "error", err)
		return err
	}
	if matured > 0 {
		logger.Infow("worker_maturation_scan_done", "matured", matured)
	}
	return nil
}

func (c *Consumer) handlePayoutSchedule(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	scheduled, err := c.PayoutService.ScheduleBatches(ctx)
	if err != nil {
		logger.Warnw("worker_payout_schedule_failed", "scheduled", scheduled, "error", err)
		return err
	}
	if scheduled > 0 {
		logger.Infow("worker_payout_schedule_done", "scheduled", scheduled)
	}
	return nil
}

func (c *Consumer) handlePayoutSettle(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.PayoutSettlePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_payout_settle_unmarshal_failed", "error", err)
			return err
		}
	}
	if payload.BatchID > 0 {
		if err := c.PayoutService.SettleBatch(ctx, payload.BatchID); err != nil {
			logger.Warnw("worker_payout_settle_batch_failed", "batch_id", payload.BatchID, "error", err)
			return err
		}
		return nil
	}
	settled, err := c.PayoutService.SettleDue(ctx, scanLimit(payload.Limit))
	if err != nil {
		logger.Warnw("worker_payout_settle_failed", "settled", settled, "error", err)
		return err
	}
	if settled > 0 {
		logger.Infow("worker_payout_settle_done", "settled", settled)
	}
	return nil
}

func (c *Consumer) handleIntentExpire(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.ScanPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_intent_expire_unmarshal_failed", "error", err)
			return err
		}
	}
	expired, err := c.PaymentService.ExpireStale(ctx, scanLimit(payload.Limit))
	if err != nil {
		logger.Warnw("worker_intent_expire_failed", "expired", expired, "error", err)
		return err
	}
	if expired > 0 {
		logger.Infow("worker_intent_expire_done", "expired", expired)
	}
	return nil
}

func (c *Consumer) handleIdempotencyPurge(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.ScanPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_idempotency_purge_unmarshal_failed", "error", err)
			return err
		}
	}
	purged, err := c.IdempotencyGuard.PurgeExpired(scanLimit(payload.Limit))
	if err != nil {
		logger.Warnw("worker_idempotency_purge_failed", "purged", purged, "error", err)
		return err
	}
	if purged > 0 {
		logger.Infow("worker_idempotency_purge_done", "purged", purged)
	}
	return nil
}
