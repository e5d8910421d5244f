// Package middleware 開發伺服器的 gin 中間件
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"udg-chat/internal/metrics"
	"udg-chat/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

// AccessLog 記錄每個請求並更新 HTTP metrics
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())

		opts := []logger.LogOption{
			logger.WithAction("http_request"),
			logger.WithHTTPRequest(&logger.HTTPRequest{
				RequestMethod: c.Request.Method,
				RequestURL:    c.Request.URL.Path,
				RequestSize:   c.Request.ContentLength,
				Status:        status,
				ResponseSize:  int64(c.Writer.Size()),
				UserAgent:     c.Request.UserAgent(),
				RemoteIP:      c.ClientIP(),
				Latency:       fmt.Sprintf("%.3fs", latency.Seconds()),
				Protocol:      c.Request.Proto,
			}),
		}
		if id := GetUserID(c); id != 0 {
			opts = append(opts, logger.WithUserID(id))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(c.Request.Context(), "HTTP 請求失敗", opts...)
		case status >= http.StatusBadRequest:
			logger.Warning(c.Request.Context(), "HTTP 請求被拒絕", opts...)
		default:
			logger.Debug(c.Request.Context(), "HTTP 請求", opts...)
		}
	}
}

// Recovery panic 時記錄日誌並回傳 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Critical(c.Request.Context(), "處理請求時發生 panic",
					logger.WithAction("panic"),
					logger.WithDetails(map[string]interface{}{
						"panic": fmt.Sprint(r),
						"path":  c.Request.URL.Path,
					}))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "服務器內部錯誤，請稍後再試",
					"code":       5001,
					"success":    false,
					"request_id": GetRequestID(c),
				})
			}
		}()
		c.Next()
	}
}
