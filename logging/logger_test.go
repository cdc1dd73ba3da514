package logging

import (
	"os"
	"path/filepath"
	"temporal-sa/crypto-provider/config"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.LoggingConfig
		expectError bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}},
		{name: "json debug", cfg: config.LoggingConfig{Level: "debug", Format: "json"}},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provider.log")
	logger, err := New(config.LoggingConfig{
		Level: "info",
		File:  &config.LogFileConfig{Path: path, MaxSize: 1},
	})
	require.NoError(t, err)

	logger.Info("key created", zap.String("algorithm", "AES"))
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "key created")
	assert.Contains(t, string(content), `"algorithm":"AES"`)
}

func TestApplyLevel(t *testing.T) {
	level, err := NewLevel(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	logger := NewWithLevel(config.LoggingConfig{}, level)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	require.NoError(t, ApplyLevel(level, config.LoggingConfig{Level: "debug"}))
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	require.Error(t, ApplyLevel(level, config.LoggingConfig{Level: "loud"}))
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	require.NoError(t, ApplyLevel(level, config.LoggingConfig{}))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}
