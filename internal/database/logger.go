package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"certificate-guard/internal/domain"
)

// DefaultSlowThreshold é o tempo a partir do qual uma query é registrada como lenta
const DefaultSlowThreshold = 200 * time.Millisecond

// gormLogger envia as mensagens do GORM para o logger estruturado da aplicação
type gormLogger struct {
	log           domain.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger adapta um domain.Logger para a interface de log do GORM
func NewGormLogger(log domain.Logger, level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{
		log:           log,
		level:         level,
		slowThreshold: DefaultSlowThreshold,
	}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.WithContext(ctx).Info(fmt.Sprintf(msg, data...), sourceFields(nil))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.WithContext(ctx).Warn(fmt.Sprintf(msg, data...), sourceFields(nil))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.WithContext(ctx).Error(fmt.Sprintf(msg, data...), nil, sourceFields(nil))
	}
}

// Trace registra falhas, queries lentas e, em modo Info, todas as queries
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	log := l.log.WithContext(ctx)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		log.Error("Database query failed", err, queryFields(sql, rows, elapsed))
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		fields := queryFields(sql, rows, elapsed)
		fields["slow_threshold_ms"] = l.slowThreshold.Milliseconds()
		log.Warn("Slow database query", fields)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		log.Debug("Database query", queryFields(sql, rows, elapsed))
	}
}

func queryFields(sql string, rows int64, elapsed time.Duration) map[string]interface{} {
	return sourceFields(map[string]interface{}{
		"sql":        sql,
		"rows":       rows,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
	})
}

func sourceFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["source"] = "gorm"
	return fields
}
