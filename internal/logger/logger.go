// Package logger wraps zap with the service-wide structured logging
// conventions: one JSON line per event, a service field on every line, and
// request/ride correlation IDs pulled from the context.
package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ridepool/internal/contextx"
)

// New builds the service logger. Output is JSON on stdout; level defaults to
// info and can be lowered to debug for development.
func New(service string, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.MessageKey = "message"

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		level,
	)

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-hostname"
	}

	return zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	)
}

// ctxFields collects the correlation fields carried in ctx.
func ctxFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if id := contextx.GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := contextx.GetRideID(ctx); id != "" {
		fields = append(fields, zap.String("ride_id", id))
	}
	return fields
}

// Info writes an INFO line tagged with an action name and context IDs.
func Info(ctx context.Context, log *zap.Logger, action, message string, fields ...zap.Field) {
	log.Info(message, append(append(ctxFields(ctx), zap.String("action", action)), fields...)...)
}

// Debug writes a DEBUG line tagged with an action name and context IDs.
func Debug(ctx context.Context, log *zap.Logger, action, message string, fields ...zap.Field) {
	log.Debug(message, append(append(ctxFields(ctx), zap.String("action", action)), fields...)...)
}

// Warn writes a WARN line tagged with an action name and context IDs.
func Warn(ctx context.Context, log *zap.Logger, action, message string, fields ...zap.Field) {
	log.Warn(message, append(append(ctxFields(ctx), zap.String("action", action)), fields...)...)
}

// Error writes an ERROR line with the error attached when non-nil.
func Error(ctx context.Context, log *zap.Logger, action, message string, err error, fields ...zap.Field) {
	all := append(ctxFields(ctx), zap.String("action", action))
	if err != nil {
		all = append(all, zap.Error(err))
	}
	log.Error(message, append(all, fields...)...)
}
