package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"udg-chat/internal/platform/config"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/storage/database"

	"github.com/gin-gonic/gin"
)

const (
	// 健康狀態常數.
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusWarning   = "warning"
	statusDegraded  = "degraded"

	// 記憶體相關常數.
	memoryMB        = 1024 * 1024
	memoryThreshold = 1024 // 1GB

	dbTimeout = 5 * time.Second
)

// 記錄服務啟動時間.
var startTime = time.Now()

// Pinger 可檢查連線狀態的儲存.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler 健康檢查處理器.
type Handler struct {
	store  Pinger
	driver string
}

// NewHealthHandler 創建新的健康檢查處理器.
func NewHealthHandler(repos *database.Repositories) *Handler {
	h := &Handler{}
	if repos != nil {
		h.store = repos
		h.driver = repos.Driver
	}
	return h
}

// HealthCheck 健康檢查端點.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := statusHealthy
	dbError := ""
	if err := h.checkDatabase(ctx); err != nil {
		dbStatus = statusUnhealthy
		dbError = err.Error()
		logger.Error(ctx, "健康檢查 - 儲存連線失敗",
			logger.WithAction("health_check"),
			logger.WithError(err))
	}

	system := h.checkSystemResources()

	app := gin.H{}
	if cfg := config.Get(); cfg != nil {
		app = gin.H{
			"name":    cfg.App.Name,
			"version": cfg.App.Version,
			"debug":   cfg.App.Debug,
		}
	}

	response := gin.H{
		"status":    statusHealthy,
		"timestamp": time.Now().Unix(),
		"app":       app,
		"database": gin.H{
			"status": dbStatus,
			"driver": h.driver,
			"error":  dbError,
		},
		"system": gin.H{
			"status":  system.Status,
			"details": system.Details,
			"uptime":  time.Since(startTime).String(),
		},
	}

	// 儲存異常時服務本身仍回 200，由 status 欄位反映
	if dbStatus == statusUnhealthy {
		response["status"] = statusDegraded
	}

	c.JSON(http.StatusOK, response)
}

// SystemStatus 系統狀態.
type SystemStatus struct {
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details"`
}

func (h *Handler) checkSystemResources() SystemStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc":       fmt.Sprintf("%.2f MB", float64(m.Alloc)/memoryMB),
			"total_alloc": fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/memoryMB),
			"sys":         fmt.Sprintf("%.2f MB", float64(m.Sys)/memoryMB),
			"num_gc":      m.NumGC,
		},
		"cpu": gin.H{
			"num_cpu": runtime.NumCPU(),
		},
	}

	status := statusHealthy
	if m.Sys/memoryMB > memoryThreshold {
		status = statusWarning
		details["memory_warning"] = "Memory usage is high"
	}

	return SystemStatus{Status: status, Details: details}
}

func (h *Handler) checkDatabase(ctx context.Context) error {
	if h.store == nil {
		return fmt.Errorf("database connection not available")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return h.store.Ping(ctx)
}
