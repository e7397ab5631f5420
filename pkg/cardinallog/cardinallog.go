// Package cardinallog builds Cardinal's process logger. It is a thin
// direct wrapper around zap rather than the teacher's pluggable
// Logger/Factory/driver abstraction (internal/log, pkg/log) — Cardinal
// has exactly one sink (stdout) and two presentations (JSON for
// production, console for local development), so the extra driver
// registry has no second implementation to justify it. See DESIGN.md.
package cardinallog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger writing to stdout. development selects a
// colorized console encoder with caller info; otherwise logs are JSON
// with RFC3339 timestamps, matching the teacher's StdoutLogger defaults.
func New(development bool) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	var options []zap.Option

	if development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
		options = append(options, zap.Development(), zap.AddCaller())
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), zapcore.InfoLevel)
	options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	return zap.New(core, options...), nil
}
