package webrtcpeer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// LevelTrace is the slog level used for pion's trace output.
const LevelTrace = slog.LevelDebug - 4

// LoggerFactory routes pion's internal logging into slog. Every scope becomes
// a "pion_scope" attribute. Messages below MinLevel are discarded before
// formatting.
type LoggerFactory struct {
	Logger   *slog.Logger
	MinLevel slog.Level
}

var _ logging.LoggerFactory = (*LoggerFactory)(nil)

// NewLoggerFactory forwards pion warnings and errors to logger.
func NewLoggerFactory(logger *slog.Logger) *LoggerFactory {
	return &LoggerFactory{Logger: logger, MinLevel: slog.LevelWarn}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLeveledLogger{
		logger:   logger.With("component", "pion", "pion_scope", scope),
		minLevel: f.MinLevel,
	}
}

type slogLeveledLogger struct {
	logger   *slog.Logger
	minLevel slog.Level
}

func (l *slogLeveledLogger) log(level slog.Level, msg string) {
	if level < l.minLevel {
		return
	}
	l.logger.Log(context.Background(), level, msg)
}

func (l *slogLeveledLogger) logf(level slog.Level, format string, args ...interface{}) {
	if level < l.minLevel || !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *slogLeveledLogger) Trace(msg string) { l.log(LevelTrace, msg) }
func (l *slogLeveledLogger) Tracef(format string, args ...interface{}) {
	l.logf(LevelTrace, format, args...)
}
func (l *slogLeveledLogger) Debug(msg string) { l.log(slog.LevelDebug, msg) }
func (l *slogLeveledLogger) Debugf(format string, args ...interface{}) {
	l.logf(slog.LevelDebug, format, args...)
}
func (l *slogLeveledLogger) Info(msg string) { l.log(slog.LevelInfo, msg) }
func (l *slogLeveledLogger) Infof(format string, args ...interface{}) {
	l.logf(slog.LevelInfo, format, args...)
}
func (l *slogLeveledLogger) Warn(msg string) { l.log(slog.LevelWarn, msg) }
func (l *slogLeveledLogger) Warnf(format string, args ...interface{}) {
	l.logf(slog.LevelWarn, format, args...)
}
func (l *slogLeveledLogger) Error(msg string) { l.log(slog.LevelError, msg) }
func (l *slogLeveledLogger) Errorf(format string, args ...interface{}) {
	l.logf(slog.LevelError, format, args...)
}
