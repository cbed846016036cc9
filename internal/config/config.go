package config

import (
	"fmt"
	"strings"

	"github.com/payhub-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Payout   PayoutConfig   `mapstructure:"payout"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 操作员令牌配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	ServiceToken    string          `mapstructure:"service_token"`
	LoginRateLimit  RateLimitConfig `mapstructure:"login_rate_limit"`
	RefundRateLimit RateLimitConfig `mapstructure:"refund_rate_limit"`
}

// RateLimitConfig 滑动窗口限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// PaymentConfig 支付配置
type PaymentConfig struct {
	IntentExpireMinutes   int                               `mapstructure:"intent_expire_minutes"`   // 授权未捕获的过期时长
	PSPTimeoutSeconds     int                               `mapstructure:"psp_timeout_seconds"`     // PSP 调用超时
	IdempotencyTTLHours   int                               `mapstructure:"idempotency_ttl_hours"`   // 幂等记录保留时长
	HoldWindowHours       int                               `mapstructure:"hold_window_hours"`       // 资金成熟等待窗口
	MaturationScanSeconds int                               `mapstructure:"maturation_scan_seconds"` // 成熟扫描周期
	Providers             map[string]map[string]interface{} `mapstructure:"providers"`               // 各 PSP 的接入配置
}

// PayoutConfig 打款配置
type PayoutConfig struct {
	MinAmount          int64 `mapstructure:"min_amount"`           // 最低打款金额（最小货币单位）
	MaxAttempts        int   `mapstructure:"max_attempts"`         // 打款最大重试次数
	RetryBaseSeconds   int   `mapstructure:"retry_base_seconds"`   // 重试退避基数
	ScheduleCronMinute int   `mapstructure:"schedule_cron_minute"` // 批次调度周期（分钟）
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "payhub.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/payhub.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expire_hours", 24)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "ph")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"Idempotency-Key",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("security.login_rate_limit.window_seconds", 60)
	viper.SetDefault("security.login_rate_limit.max_requests", 10)
	viper.SetDefault("security.login_rate_limit.block_seconds", 300)
	viper.SetDefault("security.refund_rate_limit.window_seconds", 60)
	viper.SetDefault("security.refund_rate_limit.max_requests", 30)
	viper.SetDefault("security.refund_rate_limit.block_seconds", 300)
	viper.SetDefault("payment.intent_expire_minutes", 30)
	viper.SetDefault("payment.psp_timeout_seconds", 15)
	viper.SetDefault("payment.idempotency_ttl_hours", 48)
	viper.SetDefault("payment.hold_window_hours", 24)
	viper.SetDefault("payment.maturation_scan_seconds", 300)
	viper.SetDefault("payout.min_amount", 10000)
	viper.SetDefault("payout.max_attempts", 5)
	viper.SetDefault("payout.retry_base_seconds", 60)
	viper.SetDefault("payout.schedule_cron_minute", 60)

	// 环境变量支持（server.port -> SERVER_PORT）
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}
