package xerr

import (
	"errors"
	"net/http"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 是通用 JSON 响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Message string `json:"message"` // 消息
	Data    any    `json:"data"`    // 响应数据
}

// JSONResponse 发送标准 JSON 响应
func JSONResponse(c *gin.Context, httpStatus int, code int, message string, data any) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success 成功响应
func Success(c *gin.Context, httpStatus int, message string, data any) {
	JSONResponse(c, httpStatus, SuccessCode, message, data)
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	JSONResponse(c, httpStatus, code, message, nil)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	Error(c, httpStatus, code, message)
	c.Abort()
}

type mapping struct {
	target error
	status int
	code   int
}

var errorTable = []mapping{
	{ErrInvalidParams, http.StatusBadRequest, InvalidParamsCode},
	{ErrFileTooLarge, http.StatusRequestEntityTooLarge, FileTooLargeCode},
	{ErrUnauthorized, http.StatusUnauthorized, UnauthorizedCode},
	{ErrTokenInvalid, http.StatusUnauthorized, TokenInvalidCode},
	{ErrPermissionDenied, http.StatusForbidden, PermissionDeniedCode},
	{ErrUserNotFound, http.StatusNotFound, UserNotFoundCode},
	{ErrFileNotFound, http.StatusNotFound, FileNotFoundCode},
	{ErrShareNotFound, http.StatusNotFound, ShareNotFoundCode},
	{ErrGrantNotFound, http.StatusNotFound, NotFoundCode},
	{ErrShareExpired, http.StatusGone, ShareExpiredCode},
	{ErrShareExhausted, http.StatusGone, ShareExhaustedCode},
}

// Classify 将服务层错误映射为 HTTP 状态码与业务码，未知错误返回 500
func Classify(err error) (int, int, string) {
	if qe, ok := AsQuota(err); ok {
		code := StorageQuotaExceededCode
		if qe.Kind == QuotaLinks {
			code = LinkQuotaExceededCode
		}
		return http.StatusForbidden, code, qe.Error()
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		for _, m := range errorTable {
			if errors.Is(ce.Err, m.target) {
				return m.status, ce.Code, m.target.Error()
			}
		}
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code, m.target.Error()
		}
	}
	if errors.Is(err, ErrIntegrity) {
		return http.StatusInternalServerError, IntegrityErrorCode, ErrIntegrity.Error()
	}
	return http.StatusInternalServerError, InternalServerErrorCode, ErrInternalServer.Error()
}

// Fail 按错误类型写回响应，未知错误只记录日志，不向调用方暴露细节
func Fail(c *gin.Context, err error) {
	status, code, msg := Classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err))
	}
	AbortWithError(c, status, code, msg)
}
