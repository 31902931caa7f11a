package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Level(42).String())
}

func TestNewJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, JSON: true, Service: "dualc", Output: &buf})
	logger.Debug("hidden")
	logger.Info("compiled", "class", "C1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "compiled", rec["msg"])
	assert.Equal(t, "dualc", rec["service"])
	assert.Equal(t, "C1", rec["class"])
}

func TestNewTextRespectsLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})
	logger.Info("quiet")
	assert.Empty(t, buf.String())
	logger.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestNopAndDefault(t *testing.T) {
	t.Parallel()
	Nop().Error("nothing happens")
	assert.NotNil(t, OrDefault(nil))
	l := Nop()
	assert.Same(t, l, OrDefault(l))
}
