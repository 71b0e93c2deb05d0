package logger

import (
	"context"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// log defaults to a nop logger so the package is safe to use before
// Initialize upgrades it to the configured logger
var (
	log          = zap.NewNop()
	sentryClient *sentry.Client
)

// Config holds logger configuration
type Config struct {
	Debug     bool
	SentryDSN string
	Tags      map[string]string
}

// Initialize builds the global logger, attaching a sentry core when a DSN is configured
func Initialize(cfg Config) error {
	var zapConfig zap.Config
	if cfg.Debug {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return err
	}

	if cfg.SentryDSN == "" {
		log = baseLogger
		return nil
	}

	sentryClient, err = sentry.NewClient(sentry.ClientOptions{
		Dsn:   cfg.SentryDSN,
		Debug: cfg.Debug,
	})
	if err != nil {
		return err
	}

	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags:              cfg.Tags,
	}, zapsentry.NewSentryClientFromClient(sentryClient))
	if err != nil {
		return err
	}

	log = zapsentry.AttachCoreToLogger(core, baseLogger)
	return nil
}

// Flush flushes any buffered sentry events
func Flush(timeout time.Duration) {
	if sentryClient != nil {
		sentryClient.Flush(timeout)
	}
}

// Default returns the global logger
func Default() *zap.Logger {
	return log
}

// FromContext returns a logger carrying the sentry scope attached to ctx
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return log
	}
	return log.With(zapsentry.Context(ctx))
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

// InfoCtx logs an info message with context
func InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

// WarnCtx logs a warning message with context
func WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Warn(msg, fields...)
}

// Error logs an error message
func Error(err error, fields ...zap.Field) {
	if err != nil {
		log.Error(err.Error(), fields...)
	} else {
		log.Error("error occurred", fields...)
	}
}

// ErrorCtx logs an error message with context
func ErrorCtx(ctx context.Context, err error, fields ...zap.Field) {
	if err != nil {
		FromContext(ctx).Error(err.Error(), fields...)
	} else {
		FromContext(ctx).Error("error occurred", fields...)
	}
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

// DebugCtx logs a debug message with context
func DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Debug(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	log.Fatal(msg, fields...)
}

// FatalCtx logs a fatal message with context and exits
func FatalCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Fatal(msg, fields...)
}
