package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey int

const (
	ctxKeyTraceID ctxKey = iota
	ctxKeyJobID
	ctxKeyRequestID
)

// WithTraceID returns a context carrying a trace id for log correlation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, traceID)
}

// WithJobID returns a context carrying a job id for log correlation.
func WithJobID(ctx context.Context, jobID int64) context.Context {
	return context.WithValue(ctx, ctxKeyJobID, jobID)
}

// WithRequestID returns a context carrying an HTTP request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

var global *Logger

// Logger wraps a zap logger with context-aware field extraction.
type Logger struct {
	zap   *zap.Logger
	level zapcore.Level
}

// Config controls logger construction.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // file path or "stdout"
	ErrorPath  string // not read by New; every level is written to OutputPath
	Service    string
}

// Init builds the global logger from cfg.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// New builds a standalone logger from cfg.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     rfc3339TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := openSink(cfg.OutputPath, os.Stdout)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	options := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Service != "" {
		options = append(options, zap.Fields(zap.String("service", cfg.Service)))
	}

	return &Logger{zap: zap.New(core, options...), level: level}, nil
}

func openSink(path string, def *os.File) (zapcore.WriteSyncer, error) {
	if path == "" || path == "stdout" || path == "stderr" {
		return zapcore.AddSync(def), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}

func rfc3339TimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.zap.Sync() }

// WithContext returns a zap logger enriched with fields pulled from ctx.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	return l.zap.With(fieldsFromContext(ctx)...)
}

func fieldsFromContext(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if v := ctx.Value(ctxKeyTraceID); v != nil {
		fields = append(fields, zap.String("trace_id", fmt.Sprint(v)))
	}
	if v := ctx.Value(ctxKeyJobID); v != nil {
		fields = append(fields, zap.Any("job_id", v))
	}
	if v := ctx.Value(ctxKeyRequestID); v != nil {
		fields = append(fields, zap.String("request_id", fmt.Sprint(v)))
	}
	return fields
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	emit(ctx, zapcore.DebugLevel, msg, fields)
}
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	emit(ctx, zapcore.InfoLevel, msg, fields)
}
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	emit(ctx, zapcore.WarnLevel, msg, fields)
}
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	emit(ctx, zapcore.ErrorLevel, msg, fields)
}

func emit(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if global == nil {
		return
	}
	l := global.WithContext(ctx)
	switch level {
	case zapcore.DebugLevel:
		l.Debug(msg, fields...)
	case zapcore.WarnLevel:
		l.Warn(msg, fields...)
	case zapcore.ErrorLevel:
		l.Error(msg, fields...)
	default:
		l.Info(msg, fields...)
	}
}

// Sync flushes the global logger, if initialized.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}

// Get returns the global logger, or a no-op logger if uninitialized.
func Get() *Logger {
	if global == nil {
		global = &Logger{zap: zap.NewNop()}
	}
	return global
}
