package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// WSConnectionLimiter 推播 WebSocket 連接限制器
type WSConnectionLimiter struct {
	mu                sync.Mutex
	connections       map[string]int       // IP -> 連接數
	lastConnect       map[string]time.Time // IP -> 最後連接時間
	maxPerIP          int                  // 每個 IP 最大連接數
	minInterval       time.Duration        // 最小連接間隔
	maxTotalConns     int                  // 全局最大連接數
	currentTotalConns int                  // 當前總連接數
	clock             clockwork.Clock
}

// NewWSConnectionLimiter 創建 WebSocket 連接限制器
func NewWSConnectionLimiter(maxPerIP int, minInterval time.Duration, maxTotal int) *WSConnectionLimiter {
	return NewWSConnectionLimiterWithClock(maxPerIP, minInterval, maxTotal, clockwork.NewRealClock())
}

// NewWSConnectionLimiterWithClock 使用指定時鐘創建連接限制器
func NewWSConnectionLimiterWithClock(maxPerIP int, minInterval time.Duration, maxTotal int, clock clockwork.Clock) *WSConnectionLimiter {
	return &WSConnectionLimiter{
		connections:   make(map[string]int),
		lastConnect:   make(map[string]time.Time),
		maxPerIP:      maxPerIP,
		minInterval:   minInterval,
		maxTotalConns: maxTotal,
		clock:         clock,
	}
}

// Middleware 連接限制中間件；handler 返回（連接結束）時釋放名額
func (l *WSConnectionLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !l.Acquire(clientIP) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "推播連接數已達上限，請稍後再試",
				"code":       4292,
				"success":    false,
				"request_id": GetRequestID(c),
			})
			return
		}
		defer l.Release(clientIP)

		c.Next()
	}
}

// Acquire 檢查並註冊新連接
func (l *WSConnectionLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	if l.maxTotalConns > 0 && l.currentTotalConns >= l.maxTotalConns {
		return false
	}
	if l.maxPerIP > 0 && l.connections[ip] >= l.maxPerIP {
		return false
	}
	if lastTime, exists := l.lastConnect[ip]; exists && now.Sub(lastTime) < l.minInterval {
		return false
	}

	l.connections[ip]++
	l.currentTotalConns++
	l.lastConnect[ip] = now

	// 順便清理 10 分鐘無活動且沒有連接的記錄
	for other, last := range l.lastConnect {
		if now.Sub(last) > 10*time.Minute && l.connections[other] == 0 {
			delete(l.lastConnect, other)
		}
	}
	return true
}

// Release 移除連接
func (l *WSConnectionLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, exists := l.connections[ip]
	if !exists {
		return
	}
	if count <= 1 {
		delete(l.connections, ip)
	} else {
		l.connections[ip]--
	}
	l.currentTotalConns--
}

// Stats 獲取統計信息
func (l *WSConnectionLimiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"total_connections": l.currentTotalConns,
		"unique_ips":        len(l.connections),
		"max_total":         l.maxTotalConns,
		"max_per_ip":        l.maxPerIP,
	}
}
