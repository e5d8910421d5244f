package driver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"udg-chat/internal/platform/config"
	"udg-chat/internal/platform/logger"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	mu          sync.RWMutex
	mongoClient *mongo.Client
)

// InitMongo 初始化 MongoDB 連接.
func InitMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout)*time.Second)
	defer cancel()

	clientOptions, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mu.Lock()
	mongoClient = client
	db := client.Database(cfg.Database)
	mu.Unlock()

	logger.Info(ctx, "MongoDB connected successfully",
		logger.WithAction("mongo_connect"),
		logger.WithDetails(map[string]interface{}{"database": cfg.Database}))
	return db, nil
}

func clientOptions(ctx context.Context, cfg config.MongoConfig) (*options.ClientOptions, error) {
	// 環境變數優先，設定檔有值時覆蓋
	username := os.Getenv("MONGO_USERNAME")
	password := os.Getenv("MONGO_PASSWORD")
	if cfg.Username != "" {
		username = cfg.Username
	}
	if cfg.Password != "" {
		password = cfg.Password
	}

	opts := options.Client().ApplyURI(cfg.URL)

	if username != "" && password != "" {
		opts.SetAuth(options.Credential{Username: username, Password: password})
		logger.Debug(ctx, "MongoDB 使用認證連接")
	} else {
		logger.Debug(ctx, "MongoDB 使用無認證連接（開發環境）")
	}

	if cfg.TLSEnabled {
		tlsConfig, err := loadMongoTLSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load MongoDB TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetMaxPoolSize(cfg.MaxPoolSize)
	opts.SetMinPoolSize(cfg.MinPoolSize)
	opts.SetMaxConnIdleTime(time.Duration(cfg.MaxConnIdleTime) * time.Second)
	if cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(time.Duration(cfg.ServerSelectionTimeout) * time.Second)
	}
	return opts, nil
}



// CloseMongo 關閉 MongoDB 連接.
func CloseMongo() error {
	mu.Lock()
	client := mongoClient
	mongoClient = nil
	mu.Unlock()

	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

func loadMongoTLSConfig(ctx context.Context, cfg config.MongoConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.TLSInsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
		logger.Warning(ctx, "MongoDB TLS 證書驗證已跳過（僅開發環境）")
		return tlsConfig, nil
	}

	if cfg.TLSCAFile != "" {
		caCert, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caCert); !ok {
			return nil, fmt.Errorf("failed to append CA certs")
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}
