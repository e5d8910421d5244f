package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"udg-chat/internal/grpcclient"
	"udg-chat/internal/platform/config"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type togglePinger struct {
	down atomic.Bool
}

func (p *togglePinger) Ping(ctx context.Context) error {
	if p.down.Load() {
		return errors.New("storage unavailable")
	}
	return nil
}

func TestHealthServer(t *testing.T) {
	store := &togglePinger{}
	clock := clockwork.NewFakeClock()

	hs, err := NewHealthServer(config.TLSConfig{}, store, clock)
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("監聽失敗: %v", err)
	}
	go func() { _ = hs.Serve(lis) }()
	t.Cleanup(hs.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("創建連接失敗: %v", err)
	}
	defer conn.Close()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		status, err := grpcclient.Check(ctx, conn, service)
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		return status
	}

	if got := check(HealthService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("啟動後狀態 = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Watch(ctx, time.Minute)

	store.down.Store(true)
	clock.BlockUntilContext(ctx, 1)
	clock.Advance(time.Minute)

	deadline := time.Now().Add(3 * time.Second)
	for check("") != healthpb.HealthCheckResponse_NOT_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("儲存異常後應變為 NOT_SERVING")
		}
		time.Sleep(10 * time.Millisecond)
	}

	store.down.Store(false)
	if got := hs.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("恢復後 Check() = %v", got)
	}
	if got := check(HealthService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("恢復後狀態 = %v", got)
	}
}

func TestLoadTLSCredentialsDisabled(t *testing.T) {
	creds, err := LoadTLSCredentials(config.TLSConfig{})
	if err != nil || creds != nil {
		t.Errorf("停用 TLS 時應回傳 nil, 得到 %v, %v", creds, err)
	}
	if _, err := LoadTLSConfig(config.TLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"}); err == nil {
		t.Error("憑證不存在時應回傳錯誤")
	}
}
