package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelGate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("info", "text", &buf)

	logger.Debugf("hidden %d", 1)
	logger.Infof("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("debug", "json", &buf).WithField("session", "s-1")

	logger.Warnf("dropped event")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "s-1", entry["session"])
	assert.Equal(t, "dropped event", entry["msg"])
}

func TestLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("loud", "text", &buf)
	logger.Debugf("nope")
	logger.Infof("yes")
	assert.False(t, strings.Contains(buf.String(), "nope"))
	assert.True(t, strings.Contains(buf.String(), "yes"))
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID("seg")
		require.True(t, strings.HasPrefix(id, "seg-"))
		require.False(t, seen[id])
		seen[id] = true
	}
	assert.NotContains(t, NewID(""), "-seg")
}
