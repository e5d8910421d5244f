package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound 資源不存在
	ErrNotFound = errors.New("remote: not found")
	// ErrUnauthorized token 無效或過期
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrForbidden 沒有權限（例如不是聊天室成員）
	ErrForbidden = errors.New("remote: forbidden")
	// ErrRateLimited 請求過於頻繁
	ErrRateLimited = errors.New("remote: rate limited")
)

// APIError 遠端服務回傳的錯誤
type APIError struct {
	Status    int
	Code      int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// Is 讓 errors.Is 可以用 HTTP 狀態判斷錯誤種類
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// errorBody 錯誤回應格式，相容 {"error": "..."} 與 {"message": "..."}
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id"`
}
