package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the helmd config dir
// inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "helmd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Path)
	assert.Equal(t, 0.9, cfg.Governance.AutoApproveThreshold)
	assert.True(t, cfg.Governance.AuditEnabled)
	assert.Equal(t, 100, cfg.Governance.MaxPendingIntents)
	assert.Equal(t, 300*time.Second, cfg.Governance.IntentTimeout.Duration())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_YAML(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, `governance:
  auto_approve_threshold: 0.75
  memory_locked: true
  intent_timeout: 2m
  execution_timeout: 3s
server:
  http_port: 8181
  allow_origins:
    - https://dash.example
nats:
  enabled: true
  token: s3cret
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, 0.75, cfg.Governance.AutoApproveThreshold)
	assert.True(t, cfg.Governance.MemoryLocked)
	assert.True(t, cfg.Governance.AuditEnabled, "keys absent from the file keep their defaults")
	assert.Equal(t, 2*time.Minute, cfg.Governance.IntentTimeout.Duration())
	assert.Equal(t, 3*time.Second, cfg.Governance.ExecutionTimeout.Duration())
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, []string{"https://dash.example"}, cfg.Server.AllowOrigins)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "s3cret", cfg.NATS.Token.Value())

	var logging struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	}
	logging.Format = "json"
	require.NoError(t, cfg.Unmarshal("logging", &logging))
	assert.Equal(t, "debug", logging.Level)
	assert.Equal(t, "json", logging.Format)
}

func TestLoad_TOML(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, `
[governance]
persona_locked = true
batch_size = 9
tick_interval = "500ms"

[server]
http_port = 7070
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Governance.PersonaLocked)
	assert.Equal(t, 9, cfg.Governance.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Governance.TickInterval.Duration())
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "server:\n  http_port: 8181\n")

	t.Setenv("HELMD_SERVER_HTTP_PORT", "7171")
	t.Setenv("HELMD_GOVERNANCE_SIMULATION_MODE", "true")
	t.Setenv("HELMD_NATS_URL", "nats://bus:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7171, cfg.Server.Port)
	assert.True(t, cfg.Governance.SimulationMode)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"HELMD_GOVERNANCE_MEMORY_LOCKED": "governance.memory_locked",
		"HELMD_SERVER_HTTP_PORT":         "server.http_port",
		"HELMD_NATS_URL":                 "nats.url",
		"HELMD_DEBUG":                    "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		perm    os.FileMode
		wantErr string
	}{
		{
			name:    "threshold out of range",
			content: "governance:\n  auto_approve_threshold: 1.5\n",
			perm:    0600,
			wantErr: "auto_approve_threshold",
		},
		{
			name:    "zero batch size",
			content: "governance:\n  batch_size: 0\n",
			perm:    0600,
			wantErr: "batch_size",
		},
		{
			name:    "invalid port",
			content: "server:\n  http_port: 70000\n",
			perm:    0600,
			wantErr: "invalid server port",
		},
		{
			name:    "nats without url",
			content: "nats:\n  enabled: true\n  url: \"\"\n",
			perm:    0600,
			wantErr: "nats.url",
		},
		{
			name:    "negative duration",
			content: "governance:\n  intent_timeout: -5s\n",
			perm:    0600,
			wantErr: "negative",
		},
		{
			name:    "world readable",
			content: "server:\n  http_port: 8181\n",
			perm:    0644,
			wantErr: "insecure config file permissions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.perm != 0600 && runtime.GOOS == "windows" {
				t.Skip("permission model differs on windows")
			}
			dir := setupTestHome(t)
			path := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), tt.perm))
			require.NoError(t, os.Chmod(path, tt.perm))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, outside, "server:\n  http_port: 8181\n")

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoad_RejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "real.yaml")
	writeConfig(t, outside, "server:\n  http_port: 8181\n")
	link := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.Symlink(outside, link))

	_, err := Load(link)
	require.Error(t, err)
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", "helmd"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct{ Token Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	assert.Empty(t, Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestUnmarshal_WithoutSources(t *testing.T) {
	out := struct {
		Level string `koanf:"level"`
	}{Level: "info"}
	require.NoError(t, Default().Unmarshal("logging", &out))
	assert.Equal(t, "info", out.Level)
}
