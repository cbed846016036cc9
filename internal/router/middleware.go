package router

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"
const requestIDHeader = "X-Request-ID"
const serviceTokenHeader = "X-Service-Token"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"Idempotency-Key",
			"X-Requested-With",
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	sugar := logger.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			log.Errorw("request", "errors", c.Errors.String())
			return
		}
		log.Infow("request")
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

// JWTAuthMiddleware 运营端 JWT 鉴权中间件
func JWTAuthMiddleware(secretKey string, operatorRepo repository.OperatorRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secretKey == "" || operatorRepo == nil {
			response.Unauthorized(c, "鉴权未配置")
			c.Abort()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "缺少 Authorization 请求头")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			response.Unauthorized(c, "Authorization 格式错误")
			c.Abort()
			return
		}

		tokenString := parts[1]
		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		claims := &service.JWTClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secretKey), nil
		})
		if err != nil || !token.Valid || claims.OperatorID == 0 {
			response.Unauthorized(c, "登录凭证无效")
			c.Abort()
			return
		}

		operator, err := operatorRepo.GetByID(claims.OperatorID)
		if err != nil || operator == nil {
			response.Unauthorized(c, "登录凭证无效")
			c.Abort()
			return
		}
		if operator.Status != constants.OperatorStatusActive {
			response.Unauthorized(c, "账号已停用")
			c.Abort()
			return
		}

		c.Set("operator_id", claims.OperatorID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// ServiceTokenMiddleware 服务间调用令牌校验中间件
func ServiceTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.Unauthorized(c, "服务令牌未配置")
			c.Abort()
			return
		}
		provided := strings.TrimSpace(c.GetHeader(serviceTokenHeader))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			response.Unauthorized(c, "服务令牌无效")
			c.Abort()
			return
		}
		c.Next()
	}
}
