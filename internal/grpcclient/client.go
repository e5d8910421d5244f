// Package grpcclient 開發伺服器 gRPC 健康檢查的客戶端
package grpcclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"

	"udg-chat/internal/platform/config"
	"udg-chat/internal/platform/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	conn *grpc.ClientConn
	mu   sync.RWMutex
)

// GetConnection 獲取或創建 gRPC 客戶端連接（單例模式）
// 自動從配置讀取地址
func GetConnection() (*grpc.ClientConn, error) {
	mu.RLock()
	if conn != nil {
		mu.RUnlock()
		return conn, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// 再次檢查（雙重檢查鎖定）
	if conn != nil {
		return conn, nil
	}

	cfg := config.Get()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	address := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)

	var err error
	if cfg.Security.TLS.Enabled {
		conn, err = dialWithTLS(address, cfg.Security.TLS)
	} else {
		conn, err = dialInsecure(address)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server at %s: %w", address, err)
	}

	return conn, nil
}

// dialWithTLS 使用 TLS 連接
func dialWithTLS(address string, tlsConfig config.TLSConfig) (*grpc.ClientConn, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}

	if tlsConfig.CAFile != "" {
		ca, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM(ca); !ok {
			return nil, fmt.Errorf("failed to append CA cert")
		}
		tc.RootCAs = certPool
	}

	// 雙向 TLS
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return grpc.NewClient(address, grpc.WithTransportCredentials(credentials.NewTLS(tc)))
}

// dialInsecure 不使用 TLS 連接（僅開發環境）
func dialInsecure(address string) (*grpc.ClientConn, error) {
	logger.Warning(context.Background(), "gRPC 使用不安全連接（開發環境）",
		logger.WithAction("grpc_dial"),
		logger.WithDetails(map[string]interface{}{"address": address}))
	return grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// CheckHealth 查詢服務健康狀態，service 為空字串代表整個伺服器
func CheckHealth(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	c, err := GetConnection()
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return Check(ctx, c, service)
}

// Check 以指定連接查詢健康狀態
func Check(ctx context.Context, c grpc.ClientConnInterface, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}

// CloseConnection 關閉 gRPC 連接
func CloseConnection() error {
	mu.Lock()
	defer mu.Unlock()

	if conn != nil {
		err := conn.Close()
		conn = nil
		return err
	}
	return nil
}

// IsConnected 檢查是否已連接
func IsConnected() bool {
	mu.RLock()
	defer mu.RUnlock()
	return conn != nil
}
