package logging

import (
	"context"
	"fmt"
	"os"
	"temporal-sa/crypto-provider/config"

	"github.com/natefinch/lumberjack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Provide(
	newLevelProvider,
	newLoggerProvider,
)

// NewLevel returns an adjustable level set from cfg. Empty means info.
func NewLevel(cfg config.LoggingConfig) (zap.AtomicLevel, error) {
	level := zap.NewAtomicLevel()
	if err := ApplyLevel(level, cfg); err != nil {
		return level, err
	}
	return level, nil
}

// ApplyLevel moves level to the one named in cfg. An invalid name leaves it unchanged.
func ApplyLevel(level zap.AtomicLevel, cfg config.LoggingConfig) error {
	if cfg.Level == "" {
		level.SetLevel(zap.InfoLevel)
		return nil
	}
	parsed, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	level.SetLevel(parsed)
	return nil
}

// New builds a logger writing to stderr and, when configured, a rotating file.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := NewLevel(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithLevel(cfg, level), nil
}

// NewWithLevel is New with a level the caller can change while the logger runs.
func NewWithLevel(cfg config.LoggingConfig, level zap.AtomicLevel) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != nil {
		writer := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		// file output is always json so it can be shipped as-is
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(writer),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func newLevelProvider(configProvider config.ConfigProvider) (zap.AtomicLevel, error) {
	return NewLevel(configProvider.GetProviderConfig().Logging)
}

func newLoggerProvider(lc fx.Lifecycle, configProvider config.ConfigProvider, level zap.AtomicLevel) *zap.Logger {
	logger := NewWithLevel(configProvider.GetProviderConfig().Logging, level)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stderr sync fails on some platforms; nothing useful to do about it
			_ = logger.Sync()
			return nil
		},
	})

	return logger
}
