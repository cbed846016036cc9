package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/payhub-next/internal/cache"
	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/psp"
	"github.com/payhub-next/internal/queue"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/service"

	// 注册内置 PSP 驱动
	_ "github.com/payhub-next/internal/psp/cardnet"
	_ "github.com/payhub-next/internal/psp/debitrail"
	_ "github.com/payhub-next/internal/psp/regiowallet"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	OperatorRepo    repository.OperatorRepository
	StoreRepo       repository.StoreRepository
	IntentRepo      repository.IntentRepository
	RefundRepo      repository.RefundRepository
	LedgerRepo      repository.LedgerRepository
	IdempotencyRepo repository.IdempotencyRepository
	PayoutRepo      repository.PayoutRepository

	// Services
	AuthService      *service.AuthService
	PaymentService   *service.PaymentService
	RefundService    *service.RefundService
	LedgerService    *service.LedgerService
	PayoutService    *service.PayoutService
	IdempotencyGuard *service.IdempotencyGuard
	Orchestrator     *service.Orchestrator

	driversMu sync.RWMutex
	drivers   map[string]psp.Driver
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 构建 PSP 驱动
	c.initDrivers()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OperatorRepo = repository.NewOperatorRepository(db)
	c.StoreRepo = repository.NewStoreRepository(db)
	c.IntentRepo = repository.NewIntentRepository(db)
	c.RefundRepo = repository.NewRefundRepository(db)
	c.LedgerRepo = repository.NewLedgerRepository(db)
	c.IdempotencyRepo = repository.NewIdempotencyRepository(db)
	c.PayoutRepo = repository.NewPayoutRepository(db)
}

// initDrivers 按配置实例化各 PSP 驱动，配置不合法的提供方跳过
func (c *Container) initDrivers() {
	c.drivers = make(map[string]psp.Driver)
	for name, raw := range c.Config.Payment.Providers {
		driver, err := psp.Resolve(name, raw)
		if err != nil {
			logger.Errorw("provider_init_psp_failed", "psp", name, "error", err)
			continue
		}
		c.drivers[strings.ToLower(strings.TrimSpace(name))] = driver
		logger.Infow("provider_psp_ready", "psp", driver.Name())
	}
}

// ResolvePSP 返回已配置的 PSP 驱动
func (c *Container) ResolvePSP(name string) (psp.Driver, error) {
	c.driversMu.RLock()
	defer c.driversMu.RUnlock()
	driver, ok := c.drivers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", psp.ErrUnknownProvider, name)
	}
	return driver, nil
}

func (c *Container) initServices() {
	payment := c.Config.Payment
	payout := c.Config.Payout

	c.AuthService = service.NewAuthService(c.Config, c.OperatorRepo)
	c.IdempotencyGuard = service.NewIdempotencyGuard(c.IdempotencyRepo, payment.IdempotencyTTLHours)
	c.RefundService = service.NewRefundService(c.RefundRepo, c.IntentRepo, c.LedgerRepo, c.IdempotencyGuard, c.ResolvePSP, payment.PSPTimeoutSeconds)
	c.PaymentService = service.NewPaymentService(c.IntentRepo, c.StoreRepo, c.LedgerRepo, c.RefundService, c.ResolvePSP, payment.PSPTimeoutSeconds, payment.IntentExpireMinutes)
	c.LedgerService = service.NewLedgerService(c.LedgerRepo, payment.HoldWindowHours)
	c.PayoutService = service.NewPayoutService(c.PayoutRepo, c.StoreRepo, c.LedgerRepo, c.ResolvePSP, payout.MinAmount, payout.MaxAttempts, payout.RetryBaseSeconds, payment.PSPTimeoutSeconds)
	c.Orchestrator = service.NewOrchestrator(c.PaymentService, c.RefundService, c.LedgerService, c.PayoutService)
}
