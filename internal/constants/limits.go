package constants

import "time"

// HTTP 請求相關常數
const (
	// 默認值（可被配置覆蓋）
	DefaultMaxRequestBodySize = 10 << 20 // 10MB
	DefaultMaxUploadSize      = 20 << 20 // 20MB
	DefaultRequestTimeout     = 30       // 秒
	DefaultUploadTimeout      = 120      // 秒
)

// 訊息相關常數
const (
	DefaultMaxMessageLength = 5000
	MaxFileNameLength       = 255
	TempIDPrefix            = "temp_"
)

// 輸入中提示相關常數
const (
	// 最後一次輸入後多久送出 typing_stop
	DefaultTypingStopDelay = 2 * time.Second
)

// 推播連線相關常數
const (
	DefaultEventBuffer    = 64
	DefaultCommandBuffer  = 32
	DefaultReconnectMin   = 500 * time.Millisecond
	DefaultReconnectMax   = 30 * time.Second
	WebSocketWriteWait    = 10 * time.Second
	WebSocketPongWait     = 60 * time.Second
	WebSocketPingPeriod   = (WebSocketPongWait * 9) / 10
	WebSocketMaxFrameSize = 64 << 10
)

// Rate Limiting 默認值
const (
	DefaultRateLimitPerMinute   = 100
	DefaultMessageRateLimit     = 30
	DefaultUploadRateLimit      = 10
	RateLimitCleanupIntervalMin = 10 // 分鐘
)

// WebSocket 連接限制默認值
const (
	DefaultWSMaxConnectionsPerIP   = 5
	DefaultWSMaxTotalConnections   = 1000
	DefaultWSMinConnectionInterval = 1 // 秒
)

// 用戶與認證相關常數
const (
	MinPasswordLength     = 8
	MaxNicknameLength     = 30
	DefaultTokenExpiresIn = 24 * time.Hour
)
