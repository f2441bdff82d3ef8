package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"newsfeed/backend/internal/logger"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
}

func TestNew_TextLowercasesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, slog.LevelInfo, "text")
	l.Warn("feed ingest failed", "module", "ingest")
	require.Contains(t, buf.String(), "level=warn")
	require.Contains(t, buf.String(), "module=ingest")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, slog.LevelDebug, "json")
	l.Debug("entry skipped", "feed_id", 7)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "debug", record["level"])
	require.Equal(t, float64(7), record["feed_id"])
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, slog.LevelError, "text")
	l.Info("ignored")
	require.Empty(t, buf.String())
}
