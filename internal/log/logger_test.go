package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNew_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentBackup, Output: &buf})

	logger.Debug("hidden")
	logger.Info("snapshot written", FieldPath, "/tmp/x.json")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, ComponentBackup, rec[FieldComponent])
	assert.Equal(t, "/tmp/x.json", rec[FieldPath])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf}).WithComponent(ComponentCLI)
	assert.Equal(t, ComponentCLI, logger.Component())

	logger.Info("hello")
	assert.Contains(t, buf.String(), "component=cli")
}

func TestContextRoundTrip(t *testing.T) {
	logger := New(DefaultConfig()).WithComponent(ComponentWorker)
	ctx := NewContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithCommand("finpulse tx add").
		WithDuration(1500 * time.Millisecond).
		WithOperation("import").
		WithRecord("transactions", 7).
		WithError(errors.New("boom"))

	assert.Equal(t, int64(1500), f[FieldDuration])
	assert.Equal(t, int64(7), f[FieldRecordID])
	assert.Equal(t, "import", f[FieldOperation])
	assert.Equal(t, false, f[FieldSuccess])
	assert.Len(t, f.ToSlice(), 2*len(f))
	assert.Equal(t, true, NewFields().WithError(nil)[FieldSuccess])
}
