package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's SQL tracing through zap.
type GormLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(l *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{log: l.Named("gorm"), level: level, slowThreshold: 200 * time.Millisecond}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		g.log.Sugar().Infof(msg, data...)
	}
}

func (g *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Sugar().Warnf(msg, data...)
	}
}

func (g *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		g.log.Sugar().Errorf(msg, data...)
	}
}

func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql)}

	switch {
	case err != nil && g.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		g.log.Error("sql error", append(fields, zap.Error(err))...)
	case elapsed > g.slowThreshold && g.level >= gormlogger.Warn:
		g.log.Warn("slow sql", fields...)
	case g.level >= gormlogger.Info:
		g.log.Debug("sql", fields...)
	}
}
