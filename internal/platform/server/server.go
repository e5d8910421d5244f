// Package server 本機開發用的聊天服務：HTTP API、WebSocket 推播與 gRPC 健康檢查
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"udg-chat/internal/constants"
	"udg-chat/internal/message"
	"udg-chat/internal/platform/config"
	"udg-chat/internal/platform/driver"
	"udg-chat/internal/platform/health"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/platform/middleware"
	"udg-chat/internal/storage/database"
	"udg-chat/internal/storage/database/chatroom"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const healthCheckInterval = 30 * time.Second

// Server 開發伺服器
type Server struct {
	cfg         *config.Config
	api         *API
	hub         *Hub
	jwt         *middleware.JWTMiddleware
	rateLimiter *middleware.PerEndpointRateLimiter
	wsLimiter   *middleware.WSConnectionLimiter
	health      *health.Handler
	engine      *gin.Engine
}

// Option 伺服器選項
type Option func(*Server)

// WithClock 指定時鐘（測試用）
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.api.clock = clock }
}

// WithBcryptCost 指定密碼雜湊成本（測試用較低成本）
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.api.bcryptCost = cost }
}

// New 組裝伺服器並啟動推播中心，結束時需呼叫 Close
func New(cfg *config.Config, repos *database.Repositories, opts ...Option) (*Server, error) {
	if cfg == nil || repos == nil {
		return nil, errors.New("config 與 repositories 不能為空")
	}
	if cfg.Security.Authentication.JWTSecret == "" {
		return nil, errors.New("jwt secret 不能為空")
	}

	c := *cfg
	applyLimitDefaults(&c.Limits)

	ttl := c.Security.Authentication.TokenTTL()
	if ttl <= 0 {
		ttl = constants.DefaultTokenExpiresIn
	}
	placeholder := c.Chat.DeletedPlaceholder
	if placeholder == "" {
		placeholder = message.DeletedPlaceholder
	}

	s := &Server{
		cfg: &c,
		hub: NewHub(),
		jwt: middleware.NewJWTMiddleware(c.Security.Authentication.JWTSecret, true),
		rateLimiter: middleware.NewPerEndpointRateLimiter(
			c.Limits.RateLimiting.DefaultPerMinute, time.Minute),
		wsLimiter: middleware.NewWSConnectionLimiter(
			c.Limits.WebSocket.MaxConnectionsPerIP,
			time.Duration(c.Limits.WebSocket.MinConnectionInterval)*time.Second,
			c.Limits.WebSocket.MaxTotalConnections),
		health: health.NewHealthHandler(repos),
	}
	s.api = &API{
		repos:            repos,
		hub:              s.hub,
		clock:            clockwork.NewRealClock(),
		secret:           c.Security.Authentication.JWTSecret,
		tokenTTL:         ttl,
		placeholder:      placeholder,
		maxMessageLength: c.Chat.MaxMessageLength,
		maxUploadSize:    c.Limits.Request.MaxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	uploadDir := c.Server.UploadDir
	if uploadDir == "" {
		uploadDir = "./data/uploads"
	}
	uploads, err := newUploadStore(uploadDir, publicBaseURL(&c), s.api.clock)
	if err != nil {
		s.rateLimiter.Close()
		return nil, err
	}
	s.api.uploads = uploads

	if !c.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.configureRateLimits()
	s.engine = s.Router()

	go s.hub.Run()
	return s, nil
}

// Handler 回傳 HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close 關閉所有推播連線並停止背景清理
func (s *Server) Close() {
	s.hub.Stop()
	s.rateLimiter.Close()
}

func applyLimitDefaults(l *config.LimitsConfig) {
	if l.Request.MaxBodySize <= 0 {
		l.Request.MaxBodySize = constants.DefaultMaxRequestBodySize
	}
	if l.Request.MaxUploadSize <= 0 {
		l.Request.MaxUploadSize = constants.DefaultMaxUploadSize
	}
	if l.RateLimiting.DefaultPerMinute <= 0 {
		l.RateLimiting.DefaultPerMinute = constants.DefaultRateLimitPerMinute
	}
	if l.WebSocket.MaxConnectionsPerIP <= 0 {
		l.WebSocket.MaxConnectionsPerIP = constants.DefaultWSMaxConnectionsPerIP
	}
	if l.WebSocket.MaxTotalConnections <= 0 {
		l.WebSocket.MaxTotalConnections = constants.DefaultWSMaxTotalConnections
	}
	if l.WebSocket.MinConnectionInterval < 0 {
		l.WebSocket.MinConnectionInterval = constants.DefaultWSMinConnectionInterval
	}
}

func publicBaseURL(cfg *config.Config) string {
	if cfg.Server.PublicBaseURL != "" {
		return cfg.Server.PublicBaseURL
	}
	return "http://" + net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
}

// OpenRepositories 依設定開啟儲存，回傳的 close 需在結束時呼叫
func OpenRepositories(ctx context.Context, cfg *config.Config) (*database.Repositories, func(), error) {
	switch cfg.Database.Driver {
	case "", "memory":
		logger.Info(ctx, "使用記憶體儲存（資料不會保留）")
		return database.NewMemoryRepositories(), func() {}, nil

	case "mongo":
		db, err := driver.InitMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := driver.CloseMongo(); err != nil {
				logger.Errorf(context.Background(), "關閉 MongoDB 連接失敗: %v", err)
			}
		}
		return chatroom.NewRepositories(ctx, db), closeFn, nil
	}
	return nil, nil, fmt.Errorf("不支援的資料庫驅動: %s", cfg.Database.Driver)
}

// Start 啟動開發伺服器，收到 SIGINT/SIGTERM 時優雅關閉
func Start() error {
	ctx := context.Background()

	if err := config.Load(); err != nil {
		return fmt.Errorf("載入設定失敗: %w", err)
	}
	cfg := config.Get()

	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	logger.Info(ctx, "正在啟動開發伺服器",
		logger.WithDetails(map[string]interface{}{
			"env":     config.GetEnv(),
			"version": cfg.App.Version,
			"driver":  cfg.Database.Driver,
		}))

	repos, closeRepos, err := OpenRepositories(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "儲存初始化失敗", logger.WithError(err))
		return err
	}
	defer closeRepos()

	srv, err := New(cfg, repos)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.Timeout) * time.Second,
		WriteTimeout: 0, // WebSocket 需要長連接
		IdleTimeout:  120 * time.Second,
	}

	tlsEnabled := cfg.Security.TLS.Enabled
	if tlsEnabled {
		tlsConfig, err := LoadTLSConfig(cfg.Security.TLS)
		if err != nil {
			return err
		}
		httpServer.TLSConfig = tlsConfig
	}

	grpcServer, err := NewHealthServer(cfg.Security.TLS, repos, clockwork.NewRealClock())
	if err != nil {
		return fmt.Errorf("gRPC 服務器創建失敗: %w", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go grpcServer.Watch(watchCtx, healthCheckInterval)

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Start(":" + cfg.GRPC.Port); err != nil {
			errCh <- fmt.Errorf("gRPC 服務器啟動失敗: %w", err)
		}
	}()
	go func() {
		logger.Infof(ctx, "伺服器正在監聽: %s", config.GetServerAddr())
		var err error
		if tlsEnabled {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("伺服器啟動失敗: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		logger.Info(ctx, "收到關閉信號，正在優雅關閉伺服器...", logger.WithAction("shutdown"))
	case runErr = <-errCh:
		logger.Error(ctx, "伺服器異常停止", logger.WithError(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// 推播連線的 handler 在連線關閉前不會返回
	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "伺服器關閉失敗", logger.WithError(err))
		if runErr == nil {
			runErr = err
		}
	}
	grpcServer.Stop()

	logger.Info(ctx, "伺服器已優雅關閉")
	return runErr
}
