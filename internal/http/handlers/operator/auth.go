package operator

import (
	"errors"
	"net/http"

	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	Operator  map[string]interface{} `json:"operator"`
	ExpiresAt string                 `json:"expires_at"`
}

// Login 运营账号登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误", err)
		return
	}

	operator, token, expiresAt, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, "用户名或密码错误", nil)
		case errors.Is(err, service.ErrOperatorDisabled):
			respondError(c, http.StatusUnauthorized, "账号已停用", nil)
		default:
			respondError(c, http.StatusInternalServerError, "登录失败", err)
		}
		return
	}
	response.Success(c, LoginResponse{
		Token: token,
		Operator: map[string]interface{}{
			"id":       operator.ID,
			"username": operator.Username,
		},
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}
