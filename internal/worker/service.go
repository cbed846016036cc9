package worker

import (
	"context"
	"errors"
	"time"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	intentExpireInterval     = time.Minute
	idempotencyPurgeInterval = time.Hour
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	go s.runMaturationLoop(ctx)
	go s.runIntentExpireLoop(ctx)
	go s.runPayoutLoop(ctx)
	go s.runIdempotencyPurgeLoop(ctx)
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) maturationInterval() time.Duration {
	seconds := 0
	if s.consumer != nil && s.consumer.Config != nil {
		seconds = s.consumer.Config.Payment.MaturationScanSeconds
	}
	if seconds <= 0 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

func (s *Service) runMaturationLoop(ctx context.Context) {
	s.runLoop(ctx, s.maturationInterval(), func() {
		if _, err := s.consumer.LedgerService.MatureEligible(ctx, defaultScanLimit); err != nil {
			logger.Warnw("worker_maturation_loop_failed", "error", err)
		}
	})
}

func (s *Service) runIntentExpireLoop(ctx context.Context) {
	s.runLoop(ctx, intentExpireInterval, func() {
		if _, err := s.consumer.PaymentService.ExpireStale(ctx, defaultScanLimit); err != nil {
			logger.Warnw("worker_intent_expire_loop_failed", "error", err)
		}
	})
}

func (s *Service) payoutInterval() time.Duration {
	minutes := 0
	if s.consumer != nil && s.consumer.Config != nil {
		minutes = s.consumer.Config.Payout.ScheduleCronMinute
	}
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Service) runPayoutLoop(ctx context.Context) {
	s.runLoop(ctx, s.payoutInterval(), func() {
		if _, err := s.consumer.PayoutService.ScheduleBatches(ctx); err != nil {
			logger.Warnw("worker_payout_schedule_loop_failed", "error", err)
		}
		if _, err := s.consumer.PayoutService.SettleDue(ctx, defaultScanLimit); err != nil {
			logger.Warnw("worker_payout_settle_loop_failed", "error", err)
		}
	})
}

func (s *Service) runIdempotencyPurgeLoop(ctx context.Context) {
	s.runLoop(ctx, idempotencyPurgeInterval, func() {
		if _, err := s.consumer.IdempotencyGuard.PurgeExpired(defaultScanLimit); err != nil {
			logger.Warnw("worker_idempotency_purge_loop_failed", "error", err)
		}
	})
}

func (s *Service) runLoop(ctx context.Context, interval time.Duration, runOnce func()) {
	if s == nil || s.consumer == nil {
		return
	}
	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
