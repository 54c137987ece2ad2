package zerologger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestAdapter_WritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug").With("component", "consumer")

	log.Debugf("dequeued %d", 1)
	log.Infof("bucket %s ready", "other")
	log.Warnf("retry %d", 2)
	log.Errorf("failed: %v", "boom")
	log.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)

	want := []struct {
		level string
		msg   string
	}{
		{"debug", "dequeued 1"},
		{"info", "bucket other ready"},
		{"warn", "retry 2"},
		{"error", "failed: boom"},
		{"info", "plain"},
	}
	for i, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, want[i].level, entry["level"])
		assert.Equal(t, want[i].msg, entry["message"])
		assert.Equal(t, "consumer", entry["component"])
		assert.Contains(t, entry, "time")
	}
}

func TestAdapter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Debugf("hidden")
	log.Infof("hidden")
	log.Warnf("shown")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "shown")
}
