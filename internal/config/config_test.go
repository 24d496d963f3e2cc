package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.EqualValues(t, 1, cfg.Solver.MaxResults)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "aes256", cfg.Archive.Encryption)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecdp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
solver:
  workers: 3
server:
  reverse_timeout: 5s
  max_results: 50
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Solver.Workers)
	assert.Equal(t, 5*time.Second, cfg.Server.ReverseTimeout)
	assert.EqualValues(t, 50, cfg.Server.MaxResults)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ECDP_LOG_LEVEL", "warn")
	t.Setenv("ECDP_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("ECDP_WORKERS", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Solver.Workers)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad level", body: "log:\n  level: loud\n"},
		{name: "bad encryption", body: "archive:\n  encryption: rot13\n"},
		{name: "negative workers", body: "solver:\n  workers: -1\n"},
		{name: "zero server max", body: "server:\n  max_results: 0\n"},
		{name: "not yaml", body: "log: [\n"},
		{name: "bad env workers", env: map[string]string{"ECDP_WORKERS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "ecdp.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "ecdp.yaml")
	cfg := DefaultConfig()
	cfg.Solver.Workers = 4
	cfg.Archive.Encryption = "standard"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
