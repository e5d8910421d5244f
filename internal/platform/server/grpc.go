package server

import (
	"context"
	"net"
	"time"

	"udg-chat/internal/platform/config"
	"udg-chat/internal/platform/health"
	"udg-chat/internal/platform/logger"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService gRPC 健康檢查中開發伺服器的服務名稱
const HealthService = "udg.chat.DevServer"

// HealthServer gRPC 健康檢查服務，狀態跟隨儲存連線
type HealthServer struct {
	grpcServer *grpc.Server
	health     *grpchealth.Server
	store      health.Pinger
	clock      clockwork.Clock
}

// NewHealthServer 創建 gRPC 健康檢查服務
func NewHealthServer(tlsConfig config.TLSConfig, store health.Pinger, clock clockwork.Clock) (*HealthServer, error) {
	ctx := context.Background()

	var opts []grpc.ServerOption
	creds, err := LoadTLSCredentials(tlsConfig)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
		logger.Info(ctx, "gRPC TLS 已啟用")
	} else {
		logger.Info(ctx, "gRPC 以非加密模式運行（開發環境）")
	}

	s := &HealthServer{
		grpcServer: grpc.NewServer(opts...),
		health:     grpchealth.NewServer(),
		store:      store,
		clock:      clock,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Start 在指定位址啟動服務，阻塞直到停止
func (s *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve 在既有 listener 上提供服務
func (s *HealthServer) Serve(lis net.Listener) error {
	logger.Infof(context.Background(), "gRPC 健康檢查服務啟動在 %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// Watch 定期檢查儲存連線並更新狀態，直到 ctx 結束
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Check(ctx)
		}
	}
}

// Check 立即檢查一次儲存連線
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.store.Ping(pingCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warning(ctx, "儲存連線異常，gRPC 健康狀態設為 NOT_SERVING", logger.WithError(err))
		}
	}
	s.setStatus(status)
	return status
}

func (s *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthService, status)
}

// Stop 停止 gRPC 服務
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
