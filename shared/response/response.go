package response

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDKey gin上下文中请求ID的键，由RequestID中间件写入
const RequestIDKey = "request_id"

// UnavailableRetryAfter 依赖不可用时建议的重试间隔
const UnavailableRetryAfter = 30 * time.Second

// ErrorCode 机器可读的错误码
type ErrorCode string

const (
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeNotFound       ErrorCode = "not_found"
	CodeConflict       ErrorCode = "conflict"
	CodeRateLimited    ErrorCode = "rate_limited"
	CodeUnavailable    ErrorCode = "unavailable"
	CodeInternal       ErrorCode = "internal"
)

// Response 统一响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息
type ErrorInfo struct {
	Code    ErrorCode   `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func envelope(c *gin.Context, status int, message string) Response {
	return Response{
		Code:      status,
		Message:   message,
		RequestID: c.GetString(RequestIDKey),
	}
}

func failure(c *gin.Context, status int, code ErrorCode, message string, details interface{}) Response {
	resp := envelope(c, status, message)
	resp.Error = &ErrorInfo{Code: code, Details: details}
	return resp
}

// Success 成功响应
func Success(c *gin.Context, status int, message string, data interface{}) {
	resp := envelope(c, status, message)
	resp.Data = data
	c.JSON(status, resp)
}

// Fail 错误响应
func Fail(c *gin.Context, status int, code ErrorCode, message string, details interface{}) {
	c.JSON(status, failure(c, status, code, message, details))
}

// Abort 中断后续处理并返回错误，供中间件使用
func Abort(c *gin.Context, status int, code ErrorCode, message string, details interface{}) {
	c.AbortWithStatusJSON(status, failure(c, status, code, message, details))
}

func BadRequest(c *gin.Context, message string, details interface{}) {
	Fail(c, http.StatusBadRequest, CodeInvalidRequest, message, details)
}

func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(c *gin.Context, message string, details interface{}) {
	Fail(c, http.StatusConflict, CodeConflict, message, details)
}

// ServiceUnavailable 数据层或缓存不可用，客户端可稍后重试
func ServiceUnavailable(c *gin.Context, message string, details interface{}) {
	setRetryAfter(c, UnavailableRetryAfter)
	Fail(c, http.StatusServiceUnavailable, CodeUnavailable, message, details)
}

// TooManyRequests 限流拒绝
func TooManyRequests(c *gin.Context, retryAfter time.Duration) {
	setRetryAfter(c, retryAfter)
	Abort(c, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

// InternalError 内部错误只记录日志，不向客户端暴露原因
func InternalError(c *gin.Context, logger *zap.Logger, message string, err error) {
	if logger != nil {
		logger.Error(message,
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	Fail(c, http.StatusInternalServerError, CodeInternal, message, nil)
}

// setRetryAfter 以整秒写入Retry-After，最少1秒
func setRetryAfter(c *gin.Context, d time.Duration) {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
}
