// Package logging builds the zap loggers used by the ecdp command and server.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/LiEnby/eCDP-Serial-Code/internal/config"
	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
)

// New builds a logger from cfg. It always writes to stderr; stdout carries
// command results.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// TraceTo returns a tracer that writes encoding steps at debug level.
func TraceTo(logger *zap.Logger) ecdp.Tracer {
	if logger == nil || !logger.Core().Enabled(zapcore.DebugLevel) {
		return ecdp.NopTracer
	}
	return ecdp.TraceFunc(func(line string) {
		logger.Debug(line)
	})
}
