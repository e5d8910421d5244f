package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"udg-chat/internal/storage/database"

	"github.com/gin-gonic/gin"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	down := database.NewRepositories("mongo", nil, nil, nil, func(ctx context.Context) error {
		return errors.New("server selection timeout")
	})

	tests := []struct {
		name       string
		handler    *Handler
		wantStatus string
		wantDB     string
	}{
		{"記憶體儲存", NewHealthHandler(database.NewMemoryRepositories()), statusHealthy, statusHealthy},
		{"儲存失敗", NewHealthHandler(down), statusDegraded, statusUnhealthy},
		{"未設定儲存", NewHealthHandler(nil), statusDegraded, statusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", tt.handler.HealthCheck)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("狀態碼 = %d, want 200", w.Code)
			}
			var body struct {
				Status   string `json:"status"`
				Database struct {
					Status string `json:"status"`
				} `json:"database"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("解析失敗: %v", err)
			}
			if body.Status != tt.wantStatus || body.Database.Status != tt.wantDB {
				t.Errorf("status = %s/%s, want %s/%s", body.Status, body.Database.Status, tt.wantStatus, tt.wantDB)
			}
		})
	}
}
