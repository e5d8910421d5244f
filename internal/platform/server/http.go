package server

import (
	"net/http"
	"time"

	"udg-chat/internal/constants"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/platform/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 只允許特定的來源（CLI 不帶 Origin，一律放行）
var allowedOrigins = map[string]bool{
	"http://localhost:3000": true, // 開發環境前端
	"http://localhost:8080": true,
	"http://127.0.0.1:8080": true,
	"http://localhost:5500": true, // Live Server
	"http://127.0.0.1:5500": true,
}

func allowOrigin(origin string) bool {
	return origin == "" || allowedOrigins[origin]
}

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && allowedOrigins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Router 設定路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	// 請求 ID 最優先，之後的日誌才帶得到 trace
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.Recovery())
	r.Use(corsMiddleware())
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.RequestMetadataMiddleware())
	r.Use(middleware.AccessLog())

	limits := s.cfg.Limits
	r.MaxMultipartMemory = limits.Request.MaxUploadSize

	r.GET("/health", s.health.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 附件上傳與下載，key 本身即授權
	r.PUT("/uploads/:key", s.rateLimit(), middleware.RequestSizeLimiter(limits.Request.MaxUploadSize), s.api.receiveUpload)
	r.GET("/files/:key", s.api.serveFile)

	// 推播 WebSocket：握手無法帶 header，token 走 query
	r.GET("/ws", s.wsLimiter.Middleware(), s.jwt.QueryTokenMiddleware(), s.serveWebSocket)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RequestSizeLimiter(limits.Request.MaxBodySize))

	auth := v1.Group("/auth")
	auth.Use(s.rateLimit())
	auth.POST("/signup", s.api.signup)
	auth.POST("/login", s.api.login)

	authed := v1.Group("")
	// 先認證，限流才能以用戶計算
	authed.Use(s.jwt.GinMiddleware(), s.rateLimit())

	rooms := authed.Group("/chats/rooms")
	rooms.GET("", s.api.listRooms)
	rooms.POST("", s.api.createRoom)
	rooms.GET("/:room_id", s.api.getRoom)
	rooms.PUT("/:room_id/post", s.api.updatePost)
	rooms.GET("/:room_id/messages", s.api.listMessages)
	rooms.POST("/:room_id/messages", s.api.sendMessage)
	rooms.PUT("/:room_id/messages/:message_id", s.api.updateMessage)
	rooms.DELETE("/:room_id/messages/:message_id", s.api.deleteMessage)
	rooms.POST("/:room_id/read", s.api.markRead)

	authed.POST("/uploads/presigned-url", s.api.presignUpload)

	return r
}

func (s *Server) rateLimit() gin.HandlerFunc {
	if !s.cfg.Limits.RateLimiting.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return s.rateLimiter.Middleware()
}

// configureRateLimits 為不同端點設置不同的速率限制
func (s *Server) configureRateLimits() {
	rl := s.cfg.Limits.RateLimiting
	if rl.MessagesPerMin > 0 {
		s.rateLimiter.SetLimit(http.MethodPost, "/api/v1/chats/rooms/:room_id/messages", rl.MessagesPerMin, time.Minute)
	}
	if rl.UploadsPerMin > 0 {
		s.rateLimiter.SetLimit(http.MethodPost, "/api/v1/uploads/presigned-url", rl.UploadsPerMin, time.Minute)
		s.rateLimiter.SetLimit(http.MethodPut, "/uploads/:key", rl.UploadsPerMin, time.Minute)
	}
}

func (s *Server) serveWebSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return allowOrigin(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已回應錯誤
		logger.Warning(c.Request.Context(), "WebSocket 升級失敗", logger.WithError(err))
		return
	}
	conn.SetReadLimit(constants.WebSocketMaxFrameSize)

	client := newWSClient(s.hub, conn, middleware.GetUserID(c), s.api.repos.ChatRooms)
	client.serve(c.Request.Context())
}
