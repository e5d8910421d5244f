package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用程式配置結構.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Session  SessionConfig  `mapstructure:"session"`
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// AppConfig 應用程式基本配置.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"`
}

// RemoteConfig 遠端聊天服務配置.
type RemoteConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	WebSocketURL         string `mapstructure:"websocket_url"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	UploadTimeoutSeconds int    `mapstructure:"upload_timeout_seconds"`
}

// ChatConfig 聊天室客戶端配置.
type ChatConfig struct {
	TypingStopDelayMS  int    `mapstructure:"typing_stop_delay_ms"`
	ReconnectMinMS     int    `mapstructure:"reconnect_min_ms"`
	ReconnectMaxMS     int    `mapstructure:"reconnect_max_ms"`
	EventBuffer        int    `mapstructure:"event_buffer"`
	DeletedPlaceholder string `mapstructure:"deleted_placeholder"`
	MaxMessageLength   int    `mapstructure:"max_message_length"`
}

// SessionConfig 登入狀態配置.
type SessionConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

// ServerConfig 開發伺服器配置.
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	Timeout       int    `mapstructure:"timeout"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	UploadDir     string `mapstructure:"upload_dir"`
}

// GRPCConfig gRPC 配置.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig 資料庫配置.
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // memory 或 mongo
	Mongo  MongoConfig `mapstructure:"mongo"`
}

// MongoConfig MongoDB 配置.
type MongoConfig struct {
	URL                    string `mapstructure:"url"`
	Database               string `mapstructure:"database"`
	Username               string `mapstructure:"username"`
	Password               string `mapstructure:"password"`
	MaxPoolSize            uint64 `mapstructure:"max_pool_size"`
	MinPoolSize            uint64 `mapstructure:"min_pool_size"`
	MaxConnIdleTime        int    `mapstructure:"max_conn_idle_time"`
	ConnectTimeout         int    `mapstructure:"connect_timeout"`
	ServerSelectionTimeout int    `mapstructure:"server_selection_timeout"`
	TLSEnabled             bool   `mapstructure:"tls_enabled"`
	TLSCAFile              string `mapstructure:"tls_ca_file"`
	TLSCertFile            string `mapstructure:"tls_cert_file"`
	TLSKeyFile             string `mapstructure:"tls_key_file"`
	TLSInsecureSkipVerify  bool   `mapstructure:"tls_insecure_skip_verify"`
}

// LogConfig 日誌配置.
type LogConfig struct {
	Path              string `mapstructure:"path"`
	RotationTimeHours int    `mapstructure:"rotation_time_hours"` // 日誌輪轉時間 (小時).
	MaxAgeDays        int    `mapstructure:"max_age_days"`        // 日誌保留天數.
	MaxSizeMB         int    `mapstructure:"max_size_mb"`         // 單個日誌檔案最大大小 (MB).
}

// SecurityConfig 安全配置.
type SecurityConfig struct {
	TLS            TLSConfig            `mapstructure:"tls"`
	Authentication AuthenticationConfig `mapstructure:"authentication"`
}

// TLSConfig TLS 配置.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// AuthenticationConfig 認證配置.
type AuthenticationConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	Expiration string `mapstructure:"expiration"`
}

// LimitsConfig 限制配置.
type LimitsConfig struct {
	Request      RequestLimitsConfig   `mapstructure:"request"`
	RateLimiting RateLimitingConfig    `mapstructure:"rate_limiting"`
	WebSocket    WebSocketLimitsConfig `mapstructure:"websocket"`
}

// RequestLimitsConfig 請求限制配置.
type RequestLimitsConfig struct {
	MaxBodySize   int64 `mapstructure:"max_body_size"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
}

// RateLimitingConfig Rate Limiting 配置.
type RateLimitingConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	DefaultPerMinute int  `mapstructure:"default_per_minute"`
	MessagesPerMin   int  `mapstructure:"messages_per_minute"`
	UploadsPerMin    int  `mapstructure:"uploads_per_minute"`
}

// WebSocketLimitsConfig WebSocket 連接限制配置.
type WebSocketLimitsConfig struct {
	MaxConnectionsPerIP   int `mapstructure:"max_connections_per_ip"`
	MaxTotalConnections   int `mapstructure:"max_total_connections"`
	MinConnectionInterval int `mapstructure:"min_connection_interval_seconds"`
}

var (
	config *Config
	// ENV 當前環境變數.
	ENV string = "local"
)

// Load 載入設定檔.
func Load(testCfg ...*Config) error {
	// 如果直接傳入配置（主要用於測試），設定並驗證
	if len(testCfg) > 0 && testCfg[0] != nil {
		if err := validateConfig(testCfg[0]); err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}
		config = testCfg[0]
		return nil
	}

	// 開發環境可用 .env 提供 UDG_* 覆寫值，檔案不存在不是錯誤
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// 檢查是否有 CONFIG_PATH 環境變數
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
		// 從檔案名稱推斷環境
		baseName := filepath.Base(configPath)
		ENV = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	} else {
		v.SetConfigName(ENV)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}

	// 環境變數覆寫，例如 UDG_REMOTE_BASE_URL
	v.SetEnvPrefix("UDG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("讀取配置檔案失敗: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置失敗: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("配置驗證失敗: %w", err)
	}

	config = cfg
	return nil
}

// setDefaults 設定預設值，讓最小的設定檔也能啟動.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "udg-chat")
	v.SetDefault("app.version", "dev")
	v.SetDefault("remote.timeout_seconds", 30)
	v.SetDefault("remote.upload_timeout_seconds", 120)
	v.SetDefault("chat.typing_stop_delay_ms", 2000)
	v.SetDefault("chat.reconnect_min_ms", 500)
	v.SetDefault("chat.reconnect_max_ms", 30000)
	v.SetDefault("chat.event_buffer", 64)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30)
	v.SetDefault("server.upload_dir", "./data/uploads")
	v.SetDefault("grpc.host", "localhost")
	v.SetDefault("grpc.port", "8081")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("log.path", "./logs")
	v.SetDefault("log.rotation_time_hours", 24)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("security.authentication.expiration", "24h")
}

// Get 取得設定.
func Get() *Config {
	return config
}

// SetEnv 設定環境.
func SetEnv(env string) {
	ENV = env
}

// GetEnv 取得當前環境.
func GetEnv() string {
	return ENV
}

// validateConfig 驗證配置的有效性
func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("應用程式名稱不能為空")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("應用程式版本不能為空")
	}

	// 遠端服務
	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url 不能為空")
	}
	if cfg.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote.timeout_seconds 必須大於 0")
	}

	// 聊天室客戶端
	if cfg.Chat.TypingStopDelayMS < 0 {
		return fmt.Errorf("chat.typing_stop_delay_ms 不能小於 0")
	}
	if cfg.Chat.ReconnectMaxMS > 0 && cfg.Chat.ReconnectMinMS > cfg.Chat.ReconnectMaxMS {
		return fmt.Errorf("chat.reconnect_min_ms 不能大於 chat.reconnect_max_ms")
	}

	// 資料庫
	switch cfg.Database.Driver {
	case "", "memory":
	case "mongo":
		if cfg.Database.Mongo.URL == "" {
			return fmt.Errorf("MongoDB URL 不能為空")
		}
		if cfg.Database.Mongo.Database == "" {
			return fmt.Errorf("MongoDB 資料庫名稱不能為空")
		}
		if cfg.Database.Mongo.MaxPoolSize == 0 {
			return fmt.Errorf("MongoDB 最大連接池大小必須大於 0")
		}
		if cfg.Database.Mongo.MinPoolSize > cfg.Database.Mongo.MaxPoolSize {
			return fmt.Errorf("MongoDB 最小連接池大小不能大於最大連接池大小")
		}
	default:
		return fmt.Errorf("不支援的資料庫驅動: %s", cfg.Database.Driver)
	}

	// 日誌
	if cfg.Log.RotationTimeHours <= 0 {
		return fmt.Errorf("日誌輪轉時間必須大於 0")
	}
	if cfg.Log.MaxAgeDays <= 0 {
		return fmt.Errorf("日誌保留天數必須大於 0")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("日誌檔案最大大小必須大於 0")
	}

	if exp := cfg.Security.Authentication.Expiration; exp != "" {
		if _, err := time.ParseDuration(exp); err != nil {
			return fmt.Errorf("security.authentication.expiration 格式錯誤: %w", err)
		}
	}

	return nil
}

// GetServerAddr 取得伺服器地址
func GetServerAddr() string {
	if config != nil {
		return fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)
	}
	return "localhost:8080"
}

// TypingStopDelay 取得輸入中提示的停止延遲.
func (c ChatConfig) TypingStopDelay() time.Duration {
	return time.Duration(c.TypingStopDelayMS) * time.Millisecond
}

// ReconnectBounds 取得重連退避的上下限.
func (c ChatConfig) ReconnectBounds() (time.Duration, time.Duration) {
	return time.Duration(c.ReconnectMinMS) * time.Millisecond, time.Duration(c.ReconnectMaxMS) * time.Millisecond
}

// Timeout 取得一般請求超時.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// UploadTimeout 取得上傳超時.
func (r RemoteConfig) UploadTimeout() time.Duration {
	return time.Duration(r.UploadTimeoutSeconds) * time.Second
}

// TokenTTL 取得 JWT 有效期限，格式錯誤時回傳 0.
func (a AuthenticationConfig) TokenTTL() time.Duration {
	d, err := time.ParseDuration(a.Expiration)
	if err != nil {
		return 0
	}
	return d
}
