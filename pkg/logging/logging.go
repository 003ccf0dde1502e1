// Package logging builds the zap loggers used by every binary and adapts
// them for the Temporal SDK.
package logging

import (
	"os"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger writing to stderr.
// LOG_LEVEL=debug|info|warn|error adjusts the level.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	return cfg.Build()
}

// TemporalLogger routes Temporal's key/value logging into zap
type TemporalLogger struct {
	s *zap.SugaredLogger
}

var (
	_ log.Logger     = (*TemporalLogger)(nil)
	_ log.WithLogger = (*TemporalLogger)(nil)
)

// NewTemporalLogger wraps logger for client.Options.Logger
func NewTemporalLogger(logger *zap.Logger) *TemporalLogger {
	return &TemporalLogger{s: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l *TemporalLogger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l *TemporalLogger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }

// With returns a logger carrying keyvals on every entry
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{s: l.s.With(keyvals...)}
}
