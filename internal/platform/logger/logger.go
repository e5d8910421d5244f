package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"udg-chat/internal/platform/config"

	"github.com/google/uuid"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// Severity GCP Cloud Logging 嚴重級別
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityNotice   Severity = "NOTICE"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// LogEntry GCP Cloud Logging 格式的日誌條目
type LogEntry struct {
	Severity       Severity          `json:"severity"`
	Message        string            `json:"message"`
	Timestamp      string            `json:"timestamp"`       // RFC3339 格式
	TraceID        string            `json:"trace,omitempty"` // projects/[PROJECT_ID]/traces/[TRACE_ID]
	HTTPRequest    *HTTPRequest      `json:"httpRequest,omitempty"`
	SourceLocation *SourceLocation   `json:"sourceLocation,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	InsertID       string            `json:"insertId,omitempty"` // 用於去重
	// 自定義欄位
	UserID    string                 `json:"userId,omitempty"`
	RoomID    string                 `json:"roomId,omitempty"`
	MessageID string                 `json:"messageId,omitempty"`
	TempID    string                 `json:"tempId,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HTTPRequest HTTP 請求信息
type HTTPRequest struct {
	RequestMethod string `json:"requestMethod,omitempty"`
	RequestURL    string `json:"requestUrl,omitempty"`
	RequestSize   int64  `json:"requestSize,omitempty"`
	Status        int    `json:"status,omitempty"`
	ResponseSize  int64  `json:"responseSize,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
	RemoteIP      string `json:"remoteIp,omitempty"`
	Latency       string `json:"latency,omitempty"` // 格式: "1.234s"
	Protocol      string `json:"protocol,omitempty"`
}

// SourceLocation 源代碼位置
type SourceLocation struct {
	File     string `json:"file,omitempty"`
	Line     int64  `json:"line,omitempty"`
	Function string `json:"function,omitempty"`
}

type traceKey struct{}

var (
	mu          sync.Mutex
	logWriter   io.Writer
	console     io.Writer = os.Stdout
	minSeverity           = SeverityDebug
	projectID             = "local-dev"
	serviceName           = "udg-chat"
)

var severityRank = map[Severity]int{
	SeverityDefault:  0,
	SeverityDebug:    1,
	SeverityInfo:     2,
	SeverityNotice:   3,
	SeverityWarning:  4,
	SeverityError:    5,
	SeverityCritical: 6,
}

// InitLogger 初始化日誌系統，檔案依配置輪轉
func InitLogger() error {
	cfg := config.Get()

	logDir := os.Getenv("LOG_PATH")
	if logDir == "" && cfg != nil {
		logDir = cfg.Log.Path
	}
	if logDir == "" {
		logDir = "./logs"
	}

	if id := os.Getenv("GCP_PROJECT_ID"); id != "" {
		projectID = id
	}
	if cfg != nil && cfg.App.Name != "" {
		serviceName = cfg.App.Name
	}
	if name := os.Getenv("SERVICE_NAME"); name != "" {
		serviceName = name
	}
	if cfg != nil && !cfg.App.Debug {
		minSeverity = SeverityInfo
	}

	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return err
	}

	rotationTime := 24
	maxAge := 30
	maxSize := 100
	if cfg != nil && cfg.Log.RotationTimeHours > 0 {
		rotationTime = cfg.Log.RotationTimeHours
	}
	if cfg != nil && cfg.Log.MaxAgeDays > 0 {
		maxAge = cfg.Log.MaxAgeDays
	}
	if cfg != nil && cfg.Log.MaxSizeMB > 0 {
		maxSize = cfg.Log.MaxSizeMB
	}

	logFileName := filepath.Join(logDir, serviceName+".log")
	writer, err := rotatelogs.New(
		logFileName+".%Y%m%d",
		rotatelogs.WithLinkName(logFileName),
		rotatelogs.WithRotationTime(time.Duration(rotationTime)*time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAge)*24*time.Hour),
		rotatelogs.WithRotationSize(int64(maxSize)*1024*1024),
	)
	if err != nil {
		return err
	}

	mu.Lock()
	logWriter = writer
	mu.Unlock()

	return nil
}

// SetConsole 替換控制台輸出，傳入 nil 代表只寫檔案（互動式 CLI 使用）
func SetConsole(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
}

// CloseLogger 關閉日誌檔案
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logWriter != nil {
		if closer, ok := logWriter.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
			}
		}
		logWriter = nil
	}
}

// writeLog 寫入日誌（內部方法）
func writeLog(entry *LogEntry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	jsonData = append(jsonData, '\n')

	mu.Lock()
	defer mu.Unlock()
	if logWriter != nil {
		_, _ = logWriter.Write(jsonData)
	}
	if console != nil {
		_, _ = console.Write(jsonData)
	}
}

// getSourceLocation 獲取源代碼位置
func getSourceLocation(skip int) *SourceLocation {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}

	fn := runtime.FuncForPC(pc)
	funcName := "unknown"
	if fn != nil {
		funcName = fn.Name()
	}

	return &SourceLocation{
		File:     filepath.Base(file),
		Line:     int64(line),
		Function: funcName,
	}
}

// GetTraceID 從 context 獲取 trace ID
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceKey{}).(string); ok && traceID != "" {
		return fmt.Sprintf("projects/%s/traces/%s", projectID, traceID)
	}
	return ""
}

// NewTraceID 生成新的 trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID 將 trace ID 添加到 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// Log 通用日誌方法
func Log(ctx context.Context, severity Severity, message string, opts ...LogOption) {
	if severityRank[severity] < severityRank[minSeverity] {
		return
	}

	entry := &LogEntry{
		Severity:       severity,
		Message:        message,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		TraceID:        GetTraceID(ctx),
		SourceLocation: getSourceLocation(3),
		InsertID:       uuid.New().String(),
		Labels: map[string]string{
			"service": serviceName,
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(entry)
		}
	}

	writeLog(entry)
}

// LogOption 日誌選項
type LogOption func(*LogEntry)

// WithUserID 添加用戶 ID
func WithUserID(userID int64) LogOption {
	return func(e *LogEntry) {
		e.UserID = strconv.FormatInt(userID, 10)
	}
}

// WithRoomID 添加聊天室 ID
func WithRoomID(roomID int64) LogOption {
	return func(e *LogEntry) {
		e.RoomID = strconv.FormatInt(roomID, 10)
	}
}

// WithMessageID 添加消息 ID
func WithMessageID(messageID int64) LogOption {
	return func(e *LogEntry) {
		e.MessageID = strconv.FormatInt(messageID, 10)
	}
}

// WithTempID 添加客戶端暫時 ID
func WithTempID(tempID string) LogOption {
	return func(e *LogEntry) {
		e.TempID = tempID
	}
}

// WithAction 添加操作
func WithAction(action string) LogOption {
	return func(e *LogEntry) {
		e.Action = action
	}
}

// WithDetails 添加詳細信息
func WithDetails(details map[string]interface{}) LogOption {
	return func(e *LogEntry) {
		e.Details = details
	}
}

// WithError 將錯誤加入詳細信息
func WithError(err error) LogOption {
	return func(e *LogEntry) {
		if err == nil {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]interface{})
		}
		e.Details["error"] = err.Error()
	}
}

// WithHTTPRequest 添加 HTTP 請求信息
func WithHTTPRequest(req *HTTPRequest) LogOption {
	return func(e *LogEntry) {
		e.HTTPRequest = req
	}
}

// 便捷方法

// Debug 記錄 DEBUG 級別日誌
func Debug(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityDebug, message, opts...)
}

// Info 記錄 INFO 級別日誌
func Info(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityInfo, message, opts...)
}

// Warning 記錄 WARNING 級別日誌
func Warning(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityWarning, message, opts...)
}

// Error 記錄 ERROR 級別日誌
func Error(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityError, message, opts...)
}

// Critical 記錄 CRITICAL 級別日誌
func Critical(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityCritical, message, opts...)
}

// Infof 格式化 INFO 日誌
func Infof(ctx context.Context, format string, args ...interface{}) {
	Log(ctx, SeverityInfo, fmt.Sprintf(format, args...))
}


// Errorf 格式化 ERROR 日誌
func Errorf(ctx context.Context, format string, args ...interface{}) {
	Log(ctx, SeverityError, fmt.Sprintf(format, args...))
}
