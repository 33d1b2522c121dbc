package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/sai-request-cache/types"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestZapWrapper_ErrorWithErrStack(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	z := NewZapWrapper(zap.New(core))

	z.ErrorWithErrStack("fetch failed", errors.Wrap(errors.New("boom"), "get /items"), zap.String("key", "/items"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "fetch failed", entry.Message)
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "/items", fields["key"])
	assert.NotEmpty(t, fields["stack"])
}

func TestZapWrapper_ErrorWithErrStack_NilError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	z := NewZapWrapper(zap.New(core))

	z.ErrorWithErrStack("nothing", nil)

	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "error")
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrLoggerConfigInvalid)

	_, err = NewManager(context.Background(), &types.LoggerConfig{Type: "unknown", Level: "info"})
	assert.ErrorIs(t, err, types.ErrLoggerTypeUnknown)

	m, err := NewManager(context.Background(), &types.LoggerConfig{Type: "nop", Level: "info"})
	require.NoError(t, err)
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), types.ErrServerAlreadyRunning)
	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
}

func TestNewManager_CustomCreator(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	RegisterLogger("observed", func(config interface{}) (types.Logger, error) {
		return NewZapWrapper(zap.New(core)), nil
	})

	m, err := NewManager(context.Background(), &types.LoggerConfig{Type: "observed", Level: "info"})
	require.NoError(t, err)

	m.Info("hello", zap.Int("n", 1))
	m.Debug("dropped")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].Message)
}

func TestNewDefaultLogger_FileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "cache.log")

	l, err := NewDefaultLogger(&types.LoggerConfig{
		Level: "debug",
		Config: map[string]interface{}{
			"format": "json",
			"output": "file",
			"file":   file,
		},
	})
	require.NoError(t, err)
	l.Info("written")
	assert.FileExists(t, file)
}

func TestEnsureLogDir(t *testing.T) {
	assert.ErrorIs(t, ensureLogDir(""), types.ErrLogFileIsEmpty)
	assert.ErrorIs(t, ensureLogDir("cache.log"), types.ErrLogFileWrongFormat)
}
