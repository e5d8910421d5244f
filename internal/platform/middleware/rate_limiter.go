package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"udg-chat/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// RateLimiter 固定時間窗口的速率限制器
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.Mutex
	rate     int           // 每個時間窗口允許的請求數
	window   time.Duration // 時間窗口
	clock    clockwork.Clock
	stop     chan struct{}
	once     sync.Once
}

// Visitor 訪問者信息
type Visitor struct {
	lastSeen  time.Time
	requests  int
	resetTime time.Time
}

// NewRateLimiter 創建新的速率限制器
// rate: 每個時間窗口允許的請求數
// window: 時間窗口（例如：time.Minute）
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithClock(rate, window, clockwork.NewRealClock())
}

// NewRateLimiterWithClock 使用指定時鐘創建速率限制器
func NewRateLimiterWithClock(rate int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*Visitor),
		rate:     rate,
		window:   window,
		clock:    clock,
		stop:     make(chan struct{}),
	}

	go rl.cleanupVisitors()

	return rl
}

// Middleware 返回 Gin 中間件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(visitorKey(c)) {
			abortRateLimited(c)
			return
		}
		c.Next()
	}
}

// Allow 檢查是否允許請求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	visitor, exists := rl.visitors[key]

	if !exists {
		rl.visitors[key] = &Visitor{
			lastSeen:  now,
			requests:  1,
			resetTime: now.Add(rl.window),
		}
		return true
	}

	// 時間窗口已過，重置計數器
	if !now.Before(visitor.resetTime) {
		visitor.requests = 1
		visitor.resetTime = now.Add(rl.window)
		visitor.lastSeen = now
		return true
	}

	visitor.lastSeen = now
	if visitor.requests >= rl.rate {
		return false
	}
	visitor.requests++
	return true
}

// Close 停止清理 goroutine
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanupVisitors 定期清理超過 10 分鐘沒有活動的訪問者
func (rl *RateLimiter) cleanupVisitors() {
	ticker := rl.clock.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.Chan():
			rl.mu.Lock()
			now := rl.clock.Now()
			for key, visitor := range rl.visitors {
				if now.Sub(visitor.lastSeen) > 10*time.Minute {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// PerEndpointRateLimiter 為不同端點設置不同的速率限制
// 端點以 "METHOD 路由模式" 表示，例如 "POST /api/v1/chats/rooms/:room_id/messages"
type PerEndpointRateLimiter struct {
	limiters map[string]*RateLimiter
	default_ *RateLimiter
}

// NewPerEndpointRateLimiter 創建端點級速率限制器
func NewPerEndpointRateLimiter(defaultRate int, defaultWindow time.Duration) *PerEndpointRateLimiter {
	return &PerEndpointRateLimiter{
		limiters: make(map[string]*RateLimiter),
		default_: NewRateLimiter(defaultRate, defaultWindow),
	}
}

// SetLimit 為特定端點設置限制
func (p *PerEndpointRateLimiter) SetLimit(method, route string, rate int, window time.Duration) {
	p.limiters[method+" "+route] = NewRateLimiter(rate, window)
}

// Middleware 返回 Gin 中間件
func (p *PerEndpointRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter, exists := p.limiters[c.Request.Method+" "+c.FullPath()]
		if !exists {
			limiter = p.default_
		}

		if !limiter.Allow(visitorKey(c)) {
			abortRateLimited(c)
			return
		}
		c.Next()
	}
}

// Close 停止所有限制器
func (p *PerEndpointRateLimiter) Close() {
	p.default_.Close()
	for _, l := range p.limiters {
		l.Close()
	}
}

// visitorKey 已認證的請求以用戶計算，否則以 IP 計算
func visitorKey(c *gin.Context) string {
	if id := GetUserID(c); id != 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + c.ClientIP()
}

func abortRateLimited(c *gin.Context) {
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unknown"
	}
	metrics.RateLimitHits.WithLabelValues(endpoint).Inc()

	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":      "請求過於頻繁，請稍後再試",
		"code":       4291,
		"success":    false,
		"request_id": GetRequestID(c),
	})
}
