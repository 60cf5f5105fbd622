package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftcoach/billing/pkg/logger"
)

func TestNew(t *testing.T) {
	t.Run("json output with static attrs", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithAttr(slog.String("app", "billing")),
		)
		log.InfoContext(context.Background(), "started")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "started", record["msg"])
		assert.Equal(t, "billing", record["app"])
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))
		log.Info("hidden")
		log.Warn("visible")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.True(t, strings.Contains(buf.String(), "msg=hello"))
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() {
			logger.New(logger.WithFormat("xml"))
		})
	})
}

func TestNewFromConfig(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewFromConfig(logger.Config{Level: "debug", Format: logger.FormatJSON, App: "billing"})
	_ = log // config path exercised; output goes to stdout by design

	log = logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelDebug))
	log.Debug("dbg")
	assert.Contains(t, buf.String(), "dbg")
}
