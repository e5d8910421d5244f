package middleware

import (
	"net/http"
	"strings"

	"udg-chat/internal/session"

	"github.com/gin-gonic/gin"
)

// UserIDKey 認證後用戶 ID 在 gin.Context 的 key
const UserIDKey = "user_id"

// JWTMiddleware JWT 驗證中間件
type JWTMiddleware struct {
	secretKey string
	enabled   bool
}

// NewJWTMiddleware 創建 JWT 中間件
func NewJWTMiddleware(secretKey string, enabled bool) *JWTMiddleware {
	return &JWTMiddleware{
		secretKey: secretKey,
		enabled:   enabled,
	}
}

// GinMiddleware Gin HTTP 中間件
// 使用方式：router.Use(jwtMiddleware.GinMiddleware())
func (m *JWTMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, 1001, "未提供認證 token")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, 1002, "無效的認證格式")
			return
		}

		m.authenticate(c, parts[1])
	}
}

// QueryTokenMiddleware 從 ?token= 取得 token（WebSocket 握手無法帶 header）
func (m *JWTMiddleware) QueryTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		token := c.Query("token")
		if token == "" {
			abortUnauthorized(c, 1001, "未提供認證 token")
			return
		}
		m.authenticate(c, token)
	}
}

func (m *JWTMiddleware) authenticate(c *gin.Context, token string) {
	claims, err := m.Validate(token)
	if err != nil {
		abortUnauthorized(c, 1003, "認證失敗")
		return
	}

	c.Set(UserIDKey, claims.UserID)
	if meta := GetRequestMetadataFromGin(c); meta != nil {
		meta.UserID = claims.UserID
	}
	c.Next()
}

// Validate 驗證 token 並回傳 claims
func (m *JWTMiddleware) Validate(token string) (*session.Claims, error) {
	return session.VerifyToken(m.secretKey, token)
}

// GetUserID 取得認證後的用戶 ID，未認證時回傳 0
func GetUserID(c *gin.Context) int64 {
	if v, exists := c.Get(UserIDKey); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

func abortUnauthorized(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":      message,
		"code":       code,
		"success":    false,
		"request_id": GetRequestID(c),
	})
}
