package db

import (
	"context"
	"errors"
	"time"

	appLogger "github.com/brightwire/cert-portal/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogger sends gorm output through the application logger.
// Record-not-found is expected in lookups and is never logged.
type QueryLogger struct {
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

func NewQueryLogger(slowQuery time.Duration) *QueryLogger {
	return &QueryLogger{level: gormlogger.Warn, slowQuery: slowQuery}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *QueryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		appLogger.Info(msg, map[string]interface{}{"args": args})
	}
}

func (l *QueryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		appLogger.Warn(msg, map[string]interface{}{"args": args})
	}
}

func (l *QueryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		appLogger.Error(msg, nil, map[string]interface{}{"args": args})
	}
}

func (l *QueryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		appLogger.Error("Query failed", err, map[string]interface{}{
			"sql":        sql,
			"rows":       rows,
			"elapsed_ms": elapsed.Milliseconds(),
		})
	case l.slowQuery > 0 && elapsed > l.slowQuery && l.level >= gormlogger.Warn:
		sql, rows := fc()
		appLogger.Warn("Slow query", map[string]interface{}{
			"sql":        sql,
			"rows":       rows,
			"elapsed_ms": elapsed.Milliseconds(),
		})
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		appLogger.Debug("Query", map[string]interface{}{
			"sql":  sql,
			"rows": rows,
		})
	}
}
