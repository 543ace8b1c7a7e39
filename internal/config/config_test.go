package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "magnolia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	d, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
backend: bolt
dir: /var/lib/magnolia
database: app
log_level: debug
`)
	cfg, err := Load(path, env(map[string]string{
		"MAGNOLIA_DATABASE": "override",
		"MAGNOLIA_SERVER":   "",
	}))
	require.NoError(t, err)

	assert.Equal(t, BackendBolt, cfg.Backend)
	assert.Equal(t, "/var/lib/magnolia", cfg.Dir)
	assert.Equal(t, "override", cfg.Database, "environment wins over the file")
	assert.Equal(t, "localhost:27017", cfg.Server, "empty env values are ignored")
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		env     map[string]string
		wantErr string
	}{
		{"unknown field", "backend: sqlite\nbackedn: bolt\n", nil, "failed to parse config"},
		{"unknown backend", "backend: postgres\n", nil, "invalid config"},
		{"bad log level", "log_level: loud\n", nil, "invalid config"},
		{"bad timeout", "connect_timeout: soon\n", nil, "invalid config"},
		{"database with slash", "database: a/b\n", nil, "invalid config"},
		{"env backend", "", map[string]string{"MAGNOLIA_BACKEND": "redis"}, "invalid config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), env(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate_DirRequiredForFileBackends(t *testing.T) {
	cfg := Default()
	cfg.Dir = ""
	assert.Error(t, cfg.Validate())

	cfg.Backend = BackendMemory
	assert.NoError(t, cfg.Validate())
}

func TestTimeout(t *testing.T) {
	cfg := Config{ConnectTimeout: "1m30s"}
	d, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = Config{}.Timeout()
	require.NoError(t, err)
	assert.Zero(t, d)
}
