package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "console", mutate: func(c *Config) { c.Format = "console" }},
		{name: "bad format", mutate: func(c *Config) { c.Format = "xml" }, wantErr: "format"},
		{name: "no outputs", mutate: func(c *Config) { c.Output.Stdout = false }, wantErr: "at least one output"},
		{name: "zero tick", mutate: func(c *Config) { c.Sampling.Tick = 0 }, wantErr: "sampling tick"},
		{name: "negative skip", mutate: func(c *Config) { c.Caller.Skip = -1 }, wantErr: "caller skip"},
		{name: "bad pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{"("} }, wantErr: "invalid redaction pattern"},
		{name: "long pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", maxPatternLen+1)} }, wantErr: "too long"},
		{name: "empty field value", mutate: func(c *Config) { c.Fields["env"] = "" }, wantErr: "empty value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "helmd", cfg.Fields["service"])
	assert.True(t, cfg.Redaction.Enabled)
	assert.True(t, cfg.Redaction.Content)
	assert.NotContains(t, cfg.Sampling.Levels, zapcore.ErrorLevel)
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]zapcore.Level{
		"trace":  TraceLevel,
		"TRACE":  TraceLevel,
		"debug":  zapcore.DebugLevel,
		" info ": zapcore.InfoLevel,
		"warn":   zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := LevelFromString(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := LevelFromString("loud")
	assert.Error(t, err)
	assert.Equal(t, zapcore.InfoLevel, got)
}
