package router

import (
	"fmt"
	"strings"

	"github.com/payhub-next/internal/cache"
	"github.com/payhub-next/internal/config"
	operatorhandlers "github.com/payhub-next/internal/http/handlers/operator"
	publichandlers "github.com/payhub-next/internal/http/handlers/public"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/运营分组）
	publicHandler := publichandlers.New(c)
	operatorHandler := operatorhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ph"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxRequests,
		Message:       "登录尝试过于频繁",
	}
	refundRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:refund", redisPrefix),
		WindowSeconds: cfg.Security.RefundRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.RefundRateLimit.MaxRequests,
		Message:       "退款请求过于频繁",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 服务间调用接口（结算发起方）
		service := apiV1.Group("")
		service.Use(ServiceTokenMiddleware(cfg.Security.ServiceToken))
		{
			service.POST("/payments/intents", publicHandler.CreateIntent)
		}

		// 公开查询与回调接口
		apiV1.GET("/payments/intents/by-no/:intent_no", publicHandler.GetIntentByNo)
		apiV1.POST("/webhooks/:provider", publicHandler.ProviderWebhook)

		// 运营登录（无需鉴权）
		apiV1.POST("/operator/login", RateLimitMiddleware(redisClient, loginRule, KeyByIP), operatorHandler.Login)

		// 运营端资源接口，挂在 /api/v1 下，凭 JWT 鉴权
		authorized := apiV1.Group("")
		authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.OperatorRepo))
		{
			// 支付意图
			authorized.GET("/payments/intents", operatorHandler.ListIntents)
			authorized.GET("/payments/intents/:id", operatorHandler.GetIntent)

			// 退款
			authorized.POST("/payments/intents/:id/refunds",
				RateLimitMiddleware(redisClient, refundRule, KeyByIP),
				operatorHandler.CreateRefund)
			authorized.GET("/payments/intents/:id/refunds", operatorHandler.ListRefunds)

			// 账务
			authorized.GET("/stores/:id/balance", operatorHandler.GetStoreBalance)
			authorized.GET("/ledger/entries", operatorHandler.ListLedgerEntries)

			// 打款批次
			authorized.GET("/payouts", operatorHandler.ListPayouts)
			authorized.POST("/payouts/:id/retry", operatorHandler.RetryPayout)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
