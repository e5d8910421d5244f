package httputil

import (
	"fmt"
	"net/http"
	"strings"

	"udg-chat/internal/platform/logger"
	"udg-chat/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// SafeError 安全的錯誤響應（不洩露內部信息）
func SafeError(c *gin.Context, statusCode, code int, err error, userMessage string) {
	requestID := middleware.GetRequestID(c)

	// 記錄真實錯誤到日誌
	logger.Error(c.Request.Context(), fmt.Sprintf("API Error: %v", err),
		logger.WithDetails(map[string]interface{}{
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"status":     statusCode,
		}))

	message := userMessage
	if shouldShowError(err) {
		message = err.Error()
	}

	abort(c, statusCode, code, message)
}

// shouldShowError 判斷是否可以向用戶顯示錯誤詳情
func shouldShowError(err error) bool {
	if err == nil {
		return false
	}

	// 可能洩露敏感信息的關鍵字
	dangerousKeywords := []string{
		"mongo",
		"database",
		"connection",
		"password",
		"token",
		"secret",
		"credential",
		"grpc",
		"internal",
		"stack",
		"panic",
	}

	lowerMsg := strings.ToLower(err.Error())
	for _, keyword := range dangerousKeywords {
		if strings.Contains(lowerMsg, keyword) {
			return false
		}
	}

	return true
}

func abort(c *gin.Context, statusCode, code int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"error":      message,
		"code":       code,
		"success":    false,
		"request_id": middleware.GetRequestID(c),
	})
}

// InternalServerError 內部服務器錯誤
func InternalServerError(c *gin.Context, err error) {
	SafeError(c, http.StatusInternalServerError, ErrorCodeProcessingFailed, err, "服務器內部錯誤，請稍後再試")
}

// BadRequest 錯誤的請求
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, ErrorCodeInvalidParameter, message)
}

// BadRequestWithCode 錯誤的請求，指定錯誤代碼
func BadRequestWithCode(c *gin.Context, code int, message string) {
	abort(c, http.StatusBadRequest, code, message)
}

// Unauthorized 未授權
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "未授權訪問"
	}
	abort(c, http.StatusUnauthorized, ErrorCodeInvalidCredential, message)
}

// Forbidden 禁止訪問
func Forbidden(c *gin.Context, code int, message string) {
	if message == "" {
		message = "禁止訪問"
	}
	abort(c, http.StatusForbidden, code, message)
}

// NotFoundError 資源不存在
func NotFoundError(c *gin.Context, message string) {
	if message == "" {
		message = "資源不存在"
	}
	abort(c, http.StatusNotFound, ErrorCodeRecordNotFound, message)
}

// Conflict 資源衝突
func Conflict(c *gin.Context, message string) {
	abort(c, http.StatusConflict, ErrorCodeConflict, message)
}

// TooLarge 請求內容過大
func TooLarge(c *gin.Context, message string) {
	if message == "" {
		message = FileTooLarge
	}
	abort(c, http.StatusRequestEntityTooLarge, ErrorCodeTooLarge, message)
}

// ValidationError 驗證錯誤
func ValidationError(c *gin.Context, field string, message string) {
	abort(c, http.StatusBadRequest, ErrorCodeInvalidParameter, fmt.Sprintf("%s: %s", field, message))
}
