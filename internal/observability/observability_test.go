package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

func keepDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInstrumentJSON(t *testing.T) {
	keepDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelInfo, Format: "json", Writer: &buf})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	slog.Debug("hidden")
	slog.Info("visible", "userID", "123")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "123", entry["userID"])
}

func TestInstrumentRejectsUnknownFormat(t *testing.T) {
	keepDefaultLogger(t)

	_, err := Instrument(context.Background(), Options{Format: "xml"})
	assert.Error(t, err)
}

func TestInstrumentStdoutExporter(t *testing.T) {
	keepDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(context.Background(), Options{
		Level:    slog.LevelInfo,
		Format:   "text",
		Exporter: ExporterStdout,
		Writer:   &buf,
	})
	require.NoError(t, err)

	slog.Info("exported-message")
	slog.Debug("below-minimum")
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.GreaterOrEqual(t, strings.Count(out, "exported-message"), 2, "console and exporter both receive the record")
	assert.NotContains(t, out, "below-minimum")
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  otellog.Severity
	}{
		{slog.LevelDebug, otellog.SeverityDebug},
		{slog.LevelInfo, otellog.SeverityInfo},
		{slog.LevelWarn, otellog.SeverityWarn},
		{slog.LevelError, otellog.SeverityError},
		{slog.LevelError + 4, otellog.SeverityError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severity(tt.level).Severity(), tt.level.String())
	}
}
