package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	StatusCode int         `json:"status_code"` // 业务状态码，与 HTTP 状态一致
	Msg        string      `json:"msg"`         // 提示消息
	Data       interface{} `json:"data"`        // 数据内容
}

// PageResponse 分页响应结构
type PageResponse struct {
	StatusCode int         `json:"status_code"`
	Msg        string      `json:"msg"`
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		StatusCode: http.StatusOK,
		Msg:        "success",
		Data:       data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		StatusCode: http.StatusCreated,
		Msg:        "success",
		Data:       data,
	})
}

// SuccessWithPage 分页成功响应
func SuccessWithPage(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, PageResponse{
		StatusCode: http.StatusOK,
		Msg:        "success",
		Data:       data,
		Pagination: pagination,
	})
}

// Error 错误响应，statusCode 同时作为 HTTP 状态写出
func Error(c *gin.Context, statusCode int, msg string) {
	if statusCode < 400 || statusCode > 599 {
		statusCode = http.StatusInternalServerError
	}
	c.JSON(statusCode, Response{
		StatusCode: statusCode,
		Msg:        msg,
		Data:       attachRequestID(c, nil),
	})
}

// BadRequest 400 响应
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, msg)
}

// Unauthorized 401 响应
func Unauthorized(c *gin.Context, msg string) {
	Error(c, http.StatusUnauthorized, msg)
}

// NotFound 404 响应
func NotFound(c *gin.Context, msg string) {
	Error(c, http.StatusNotFound, msg)
}

// Conflict 409 响应
func Conflict(c *gin.Context, msg string) {
	Error(c, http.StatusConflict, msg)
}

func attachRequestID(c *gin.Context, data interface{}) interface{} {
	if c == nil {
		return data
	}
	value, ok := c.Get("request_id")
	if !ok {
		return data
	}
	requestID, ok := value.(string)
	if !ok || requestID == "" {
		return data
	}
	switch v := data.(type) {
	case nil:
		return gin.H{"request_id": requestID}
	case gin.H:
		if _, ok := v["request_id"]; !ok {
			v["request_id"] = requestID
		}
		return v
	case map[string]interface{}:
		if _, ok := v["request_id"]; !ok {
			v["request_id"] = requestID
		}
		return v
	default:
		return gin.H{
			"request_id": requestID,
			"data":       data,
		}
	}
}
