package service

import (
	"errors"
	"time"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 操作员认证服务
type AuthService struct {
	cfg          *config.Config
	operatorRepo repository.OperatorRepository
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg *config.Config, operatorRepo repository.OperatorRepository) *AuthService {
	return &AuthService{
		cfg:          cfg,
		operatorRepo: operatorRepo,
	}
}

// VerifyPassword 验证密码
func (s *AuthService) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// JWTClaims JWT 声明
type JWTClaims struct {
	OperatorID uint   `json:"operator_id"`
	Username   string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成 JWT Token
func (s *AuthService) GenerateJWT(operator *models.Operator) (string, time.Time, error) {
	expiresAt := time.Now().Add(time.Duration(s.cfg.JWT.ExpireHours) * time.Hour)

	claims := JWTClaims{
		OperatorID: operator.ID,
		Username:   operator.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ParseJWT 解析 JWT Token
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("无效的 token")
}

// Login 操作员登录
func (s *AuthService) Login(username, password string) (*models.Operator, string, time.Time, error) {
	operator, err := s.operatorRepo.GetByUsername(username)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if operator == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if operator.Status != constants.OperatorStatusActive {
		return nil, "", time.Time{}, ErrOperatorDisabled
	}

	if err := s.VerifyPassword(operator.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.GenerateJWT(operator)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := time.Now()
	operator.LastLoginAt = &now
	if err := s.operatorRepo.UpdateLastLogin(operator.ID, now); err != nil {
		return nil, "", time.Time{}, err
	}

	return operator, token, expiresAt, nil
}
