package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/geoimport/internal/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQuery is the duration above which a statement is logged as slow.
const slowQuery = 200 * time.Millisecond

// gormLogger writes gorm's statement log through the logger carried by the
// query context, so SQL lines share the request and import fields.
type gormLogger struct {
	level gormlogger.LogLevel
}

func newGormLogger(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.FromContext(ctx).WithField(logger.FieldComponent, "db").Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.FromContext(ctx).WithField(logger.FieldComponent, "db").Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.FromContext(ctx).WithField(logger.FieldComponent, "db").Errorf(msg, args...)
	}
}

// Trace logs failed statements at error level, slow ones at warn level and
// everything else only in info mode. Record-not-found is not a failure.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := elapsed > slowQuery
	if !failed && !(slow && l.level >= gormlogger.Warn) && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	entry := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent:  "db",
		logger.FieldDurationMs: elapsed.Milliseconds(),
		"rows":                 rows,
		"sql":                  sql,
	})
	switch {
	case failed && l.level >= gormlogger.Error:
		entry.WithError(err).Error("Query failed")
	case slow && l.level >= gormlogger.Warn:
		entry.Warn("Slow query")
	case l.level >= gormlogger.Info:
		entry.Info("Query")
	}
}
