package grpcclient

import (
	"context"
	"net"
	"testing"
	"time"

	"udg-chat/internal/platform/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// startHealthServer 在隨機埠啟動只有健康檢查服務的 gRPC 伺服器
func startHealthServer(t *testing.T) (string, *health.Server) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("監聽失敗: %v", err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String(), hs
}

func TestCheck(t *testing.T) {
	addr, hs := startHealthServer(t)
	hs.SetServingStatus("udg.chat", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("udg.storage", healthpb.HealthCheckResponse_NOT_SERVING)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("創建連接失敗: %v", err)
	}
	defer conn.Close()

	testCases := []struct {
		name    string
		service string
		want    healthpb.HealthCheckResponse_ServingStatus
		wantErr bool
	}{
		{"整體服務", "", healthpb.HealthCheckResponse_SERVING, false},
		{"聊天服務", "udg.chat", healthpb.HealthCheckResponse_SERVING, false},
		{"儲存服務停止", "udg.storage", healthpb.HealthCheckResponse_NOT_SERVING, false},
		{"未知服務", "udg.unknown", healthpb.HealthCheckResponse_UNKNOWN, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			got, err := Check(ctx, conn, tc.service)
			if (err != nil) != tc.wantErr {
				t.Fatalf("錯誤不符合預期: %v", err)
			}
			if got != tc.want {
				t.Errorf("期望 %v，實際為 %v", tc.want, got)
			}
		})
	}
}

func TestCheckHealthFromConfig(t *testing.T) {
	addr, _ := startHealthServer(t)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		App:    config.AppConfig{Name: "udg-chat", Version: "test"},
		Remote: config.RemoteConfig{BaseURL: "http://localhost", TimeoutSeconds: 5},
		GRPC:   config.GRPCConfig{Host: host, Port: port},
		Log:    config.LogConfig{Path: t.TempDir(), RotationTimeHours: 24, MaxAgeDays: 1, MaxSizeMB: 1},
	}
	if err := config.Load(cfg); err != nil {
		t.Fatalf("載入配置失敗: %v", err)
	}
	t.Cleanup(func() { _ = CloseConnection() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := CheckHealth(ctx, "")
	if err != nil {
		t.Fatalf("健康檢查失敗: %v", err)
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("期望 SERVING，實際為 %v", status)
	}
	if !IsConnected() {
		t.Error("健康檢查後應該保留連接")
	}

	if err := CloseConnection(); err != nil {
		t.Errorf("關閉連接失敗: %v", err)
	}
	if IsConnected() {
		t.Error("關閉後不應該仍有連接")
	}
}
