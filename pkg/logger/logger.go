package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceIdKey 上游（HTTP 中间件）塞进 ctx 的请求 ID
const TraceIdKey = "trace_id"

// Log 全局 logger。没 Init 之前是 Nop，库代码和测试可以直接调
var Log = zap.NewNop()

// level 热更新用
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Config 日志配置
type Config struct {
	Level string `mapstructure:"level"` // debug / info / warn / error
	File  string `mapstructure:"file"`  // 为空写 logs/<service>.log；"-" 只写控制台
}

func Init(serviceName string, lvl string) {
	InitWithFile(serviceName, lvl, "")
}

// InitWithFile 控制台 + 文件双写，JSON 格式
func InitWithFile(serviceName string, lvl string, logFile string) {
	if err := SetLevel(lvl); err != nil {
		_ = SetLevel("info")
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	if logFile != "-" {
		// 文件打不开只写控制台，不影响启动
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
			if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(file))
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		level,
	)
	// 封装了一层，CallerSkip 1 行号才对
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).With(zap.String("service", serviceName))
}

// SetLevel 运行中改级别，配置热更新时调
func SetLevel(lvl string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Info(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Error(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Warn(msg, fields...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Debug(msg, fields...)
}

// Fatal 会 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Fatal(msg, fields...)
}

// extractTrace 请求 ID 和 otel trace id 都带上
func extractTrace(ctx context.Context, fields *[]zap.Field) {
	if ctx == nil {
		return
	}
	if reqID, ok := ctx.Value(TraceIdKey).(string); ok && reqID != "" {
		*fields = append(*fields, zap.String("trace_id", reqID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		*fields = append(*fields, zap.String("otel_trace_id", sc.TraceID().String()))
	}
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
