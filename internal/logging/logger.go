package logging

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"flash-sale/internal/config"
)

// New builds a zap core and exposes it through the slog API used across the
// code base. The returned function flushes buffered entries.
func New(cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return slog.New(zapslog.NewHandler(zl.Core())), zl.Sync, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
}
