package middleware

import (
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"udg-chat/internal/constants"

	"github.com/gin-gonic/gin"
)

// ValidationError 驗證錯誤
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ParseIDParam 解析路徑中的正整數 ID
func ParseIDParam(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: name, Message: "ID 格式錯誤"}
	}
	return id, nil
}

// ValidateEmail 驗證 email 格式
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &ValidationError{Field: "email", Message: "不能為空"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "格式錯誤"}
	}
	return nil
}

// ValidatePassword 驗證密碼長度
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < constants.MinPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("至少需要 %d 個字符", constants.MinPasswordLength)}
	}
	// bcrypt 只使用前 72 bytes
	if len(password) > 72 {
		return &ValidationError{Field: "password", Message: "過長"}
	}
	return nil
}

// ValidateNickname 驗證暱稱
func ValidateNickname(nickname string) error {
	trimmed := strings.TrimSpace(nickname)
	if trimmed == "" {
		return &ValidationError{Field: "nickname", Message: "不能為空"}
	}
	if utf8.RuneCountInString(trimmed) > constants.MaxNicknameLength {
		return &ValidationError{Field: "nickname", Message: fmt.Sprintf("超過最大長度限制 (%d 字符)", constants.MaxNicknameLength)}
	}
	if strings.Contains(nickname, "\x00") {
		return &ValidationError{Field: "nickname", Message: "包含非法字符"}
	}
	return nil
}

// SanitizeInput 消毒輸入（移除危險字符）
func SanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	// 移除控制字符（除了換行和 Tab）
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// RequestSizeLimiter 限制請求體大小的中間件
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":      fmt.Sprintf("請求體過大，最大允許 %d 字節", maxSize),
				"code":       4131,
				"success":    false,
				"request_id": GetRequestID(c),
			})
			return
		}

		// 沒有 Content-Length 的請求在讀取時限制
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
