package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"udg-chat/internal/message"
)

// ErrNotLoggedIn 尚未登入
var ErrNotLoggedIn = errors.New("not logged in")

// Session 目前登入的用戶與 token，由呼叫端注入，不是全域單例
type Session struct {
	mu     sync.RWMutex
	token  string
	claims *Claims
	user   message.User
}

// New 建立未登入的 Session
func New() *Session {
	return &Session{}
}

// FromToken 以既有 token 建立 Session
func FromToken(token string) (*Session, error) {
	s := New()
	if err := s.Login(token, message.User{}); err != nil {
		return nil, err
	}
	return s, nil
}

// Login 設定登入狀態，user 為空時由 token 內容補上
func (s *Session) Login(token string, user message.User) error {
	claims, err := ParseClaims(token)
	if err != nil {
		return err
	}
	if user.ID == 0 {
		user.ID = claims.UserID
		user.Email = claims.Email
	}
	if user.ID != claims.UserID {
		return fmt.Errorf("用戶 ID 與 token 不一致: %d != %d", user.ID, claims.UserID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.claims = claims
	s.user = user
	return nil
}

// Logout 清除登入狀態
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.claims = nil
	s.user = message.User{}
}

// Token 目前的 bearer token，未登入時為空字串
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID 目前登入的用戶 ID，未登入時為 0
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.ID
}

// User 目前登入的用戶
func (s *Session) User() message.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// LoggedIn 是否已登入
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

// Expired token 是否已過期，沒有 exp 的 token 視為不會過期
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return true
	}
	if s.claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(s.claims.ExpiresAt.Time)
}

type storedSession struct {
	Token string       `json:"token"`
	User  message.User `json:"user"`
}

// Save 寫入 token 檔案
func (s *Session) Save(path string) error {
	s.mu.RLock()
	data := storedSession{Token: s.token, User: s.user}
	s.mu.RUnlock()

	if data.Token == "" {
		return ErrNotLoggedIn
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("建立 token 目錄失敗: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("寫入 token 檔案失敗: %w", err)
	}
	return nil
}

// Load 從 token 檔案讀取，檔案不存在回傳 ErrNotLoggedIn
func Load(path string) (*Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("讀取 token 檔案失敗: %w", err)
	}

	var data storedSession
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("解析 token 檔案失敗: %w", err)
	}

	s := New()
	if err := s.Login(data.Token, data.User); err != nil {
		return nil, err
	}
	return s, nil
}

// Remove 刪除 token 檔案，檔案不存在不是錯誤
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
