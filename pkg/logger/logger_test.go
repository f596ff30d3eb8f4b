package logger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dataroom-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetLogger_Fallback(t *testing.T) {
	l := logger.GetLogger(context.Background())
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.Info("dropped") })
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataroom.log")

	ctx, err := logger.New(context.Background(), logger.Config{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log := logger.GetLogger(ctx)
	log.Info("import finished", zap.Int("imported", 2))
	log.Debug("below level")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"import finished"`)
	assert.Contains(t, string(data), `"imported":2`)
	assert.NotContains(t, string(data), "below level")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New(context.Background(), logger.Config{Level: "loud"})
	assert.Error(t, err)
}

func TestWith(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.WithLogger(context.Background(), logger.FromZap(zap.New(core)))

	logger.GetLogger(ctx).With(zap.String("request_id", "r1")).Warn("slow")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "r1", logs.All()[0].ContextMap()["request_id"])
}
