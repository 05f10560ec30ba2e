package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer

	l, err := NewWithWriter(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len(), "info should be filtered at warn level")

	cl := WithComponent(l, "scanner")
	cl.Warn().Str("ip", "192.168.1.5").Msg("send failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "scanner", entry["component"])
	assert.Equal(t, "192.168.1.5", entry["ip"])
	assert.Equal(t, "send failed", entry["message"])
}

func TestNewWithWriterDebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer

	l, err := NewWithWriter(Config{Level: "error", Debug: true}, &buf)
	require.NoError(t, err)

	l.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"bad level", Config{Level: "loud"}},
		{"bad output", Config{Output: "syslog"}},
		{"bad format", Config{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			assert.Error(t, err)
		})
	}
}
