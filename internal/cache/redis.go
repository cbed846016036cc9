package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/payhub-next/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ph"

// 缓存是可选依赖：未启用或初始化失败时所有操作退化为 no-op，
// 读取一律按未命中处理，业务路径不感知差异。
var (
	client  *redis.Client
	prefix  string
	enabled bool
)

// InitRedis 建立 Redis 连接并探活，连不上时保持缓存关闭
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		enabled = false
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	prefix = strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	c := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		enabled = false
		return fmt.Errorf("redis ping failed: %w", err)
	}
	client = c
	enabled = true
	return nil
}

// Enabled 缓存是否可用
func Enabled() bool {
	return enabled && client != nil
}

// Client 返回底层 Redis 客户端，限流等组件直接复用这条连接
func Client() *redis.Client {
	if !Enabled() {
		return nil
	}
	return client
}

// GetJSON 读缓存并反序列化，返回是否命中
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := client.Get(ctx, buildKey(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 序列化后写缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, buildKey(key), payload, ttl).Err()
}

// Del 删除缓存键，用于写路径上的主动失效
func Del(ctx context.Context, key string) error {
	if !Enabled() {
		return nil
	}
	return client.Del(ctx, buildKey(key)).Err()
}

func buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return prefix
	}
	return fmt.Sprintf("%s:%s", prefix, trimmed)
}
