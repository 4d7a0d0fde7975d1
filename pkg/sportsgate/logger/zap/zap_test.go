package zap

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

var _ sportsgate.Logger = (*Logger)(nil)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLogger(zap.New(core))

	logger.Warn("api budget at 80%",
		sportsgate.Field{Key: "calls_used", Value: 80},
		sportsgate.Field{Key: "error", Value: errors.New("boom")},
	)
	logger.Debug("cache hit", sportsgate.Field{Key: "key", Value: "standings:39:2024"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "api budget at 80%", entries[0].Message)

	ctx := entries[0].ContextMap()
	assert.EqualValues(t, 80, ctx["calls_used"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "standings:39:2024", entries[1].ContextMap()["key"])
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sportsgate.log")
	zl, err := NewFileLogger(FileConfig{Path: path, Level: "info"})
	require.NoError(t, err)

	logger := NewLogger(zl)
	logger.Debug("filtered")
	logger.Info("daily budget reset", sportsgate.Field{Key: "previous_date", Value: "2025-03-01"})
	require.NoError(t, logger.Sync())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, "daily budget reset", lines[0]["message"])
	assert.Equal(t, "2025-03-01", lines[0]["previous_date"])
}

func TestNewFileLogger_Validation(t *testing.T) {
	_, err := NewFileLogger(FileConfig{})
	assert.Error(t, err)

	_, err = NewFileLogger(FileConfig{Path: filepath.Join(t.TempDir(), "x.log"), Level: "loud"})
	assert.Error(t, err)
}
