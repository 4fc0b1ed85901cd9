package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level    string
		format   string
		expected zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"info", "json", zapcore.InfoLevel},
		{"warn", "json", zapcore.WarnLevel},
		{"error", "console", zapcore.ErrorLevel},
		{"bogus", "json", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := New(tt.level, tt.format, "proactivecare-test")
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.expected))
			if tt.expected > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.expected-1))
			}
		})
	}
}

func TestNewConfigFields(t *testing.T) {
	cfg := newConfig("info", "json", "proactivecare-test")
	assert.Equal(t, "proactivecare-test", cfg.InitialFields["service_name"])
	assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		assert.Equal(t, hostname, cfg.InitialFields["hostname"])
	}

	console := newConfig("debug", "console", "")
	assert.NotContains(t, console.InitialFields, "service_name")
	assert.Equal(t, "console", console.Encoding)
}
