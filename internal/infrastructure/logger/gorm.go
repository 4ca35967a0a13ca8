package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// maxLoggedSQL bounds statement text when full SQL logging is off
const maxLoggedSQL = 256

// GormLogger routes GORM statement logs through zap, tagged with the
// request and invoice IDs carried by the context
type GormLogger struct {
	logger        *zap.Logger
	logLevel      gormlogger.LogLevel
	slowThreshold time.Duration
	fullSQL       bool
}

// GormLoggerOption is a function that configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the slow query threshold
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// WithFullSQL logs statements untruncated. Parsed invoice payloads end up in
// statement text, so this stays off outside development.
func WithFullSQL(full bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.fullSQL = full
	}
}

// NewGormLogger creates a new GORM logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:        zapLogger.Named("gorm"),
		logLevel:      level,
		slowThreshold: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.logLevel = level
	return &cp
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Info, zapcore.InfoLevel, msg, data)
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(min gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if l.logLevel < min {
		return
	}
	l.logger.Log(level, fmt.Sprintf(msg, data...))
}

// Trace implements gormlogger.Interface. Failed statements log at error,
// statements over the slow threshold at warn, everything else at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		level zapcore.Level
		msg   string
	)
	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
		// lookups of missing invoices surface as 404s, not SQL errors
		if errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		level, msg = zapcore.ErrorLevel, "SQL Error"
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.logLevel >= gormlogger.Warn:
		level, msg = zapcore.WarnLevel, fmt.Sprintf("SLOW SQL >= %v", l.slowThreshold)
	case l.logLevel >= gormlogger.Info:
		level, msg = zapcore.DebugLevel, "SQL Query"
	default:
		return
	}

	l.logger.Log(level, msg, l.statementFields(ctx, elapsed, fc, err)...)
}

func (l *GormLogger) statementFields(ctx context.Context, elapsed time.Duration, fc func() (string, int64), err error) []zap.Field {
	sql, rows := fc()
	if !l.fullSQL && len(sql) > maxLoggedSQL {
		sql = sql[:maxLoggedSQL] + "..."
	}
	fields := make([]zap.Field, 0, 6)
	fields = append(fields,
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	)
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetInvoiceID(ctx); id != "" {
		fields = append(fields, zap.String("invoice_id", id))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

// MapGormLogLevel maps string log level to GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
