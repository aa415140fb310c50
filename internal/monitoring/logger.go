// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logf is the package-level diagnostic logger. It defaults to an info-level
// zap console logger on stderr and may be replaced by Init or SetLogger.
// Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{})

// Warnf, Errorf and Debugf log at their named levels.
var (
	Warnf  func(format string, v ...interface{})
	Errorf func(format string, v ...interface{})
	Debugf func(format string, v ...interface{})
)

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	use(l.Sugar())
}

func use(s *zap.SugaredLogger) {
	Logf = s.Infof
	Warnf = s.Warnf
	Errorf = s.Errorf
	Debugf = s.Debugf
}

// NewLogger builds a zap logger.
// level: "debug", "info", "warn", "error" (default "info").
// format: "json" or "console" (default "json").
func NewLogger(level, format, service string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		l = l.With(zap.String("service_name", service))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		l = l.With(zap.String("hostname", hostname))
	}
	return l, nil
}

// Init builds a logger with NewLogger and routes the package functions to
// it. Callers should Sync the returned logger on exit.
func Init(level, format, service string) (*zap.Logger, error) {
	l, err := NewLogger(level, format, service)
	if err != nil {
		return nil, err
	}
	use(l.Sugar())
	return l, nil
}

// SetLogger replaces every level with f. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf, Warnf, Errorf, Debugf = f, f, f, f
}
