package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "file:filedock.db", cfg.Database.URL)
	assert.Equal(t, 5, cfg.Database.ConnectRetries)
	assert.Equal(t, "uploads", cfg.Upload.Dir)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, 20, cfg.Upload.MaxFiles)
	assert.Equal(t, 2*time.Minute, cfg.Upload.Timeout)
	assert.Equal(t, "/uploads", cfg.Upload.PublicBase)
	assert.Equal(t, "abort", cfg.Upload.BatchPolicy)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FileEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "filedock.yaml", `
server:
  port: 7000
upload:
  max_file_size: 2048
  batch_policy: partial
log:
  level: debug
`)
	t.Setenv("FILEDOCK_UPLOAD_DIR", "/srv/blobs")
	t.Setenv("FILEDOCK_UPLOAD_TIMEOUT", "30s")
	t.Setenv("FILEDOCK_LOG_LEVEL", "warn")

	cfg, err := Load(path, Overrides{Port: 9000})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(2048), cfg.Upload.MaxFileSize)
	assert.Equal(t, "partial", cfg.Upload.BatchPolicy)
	assert.Equal(t, "/srv/blobs", cfg.Upload.Dir)
	assert.Equal(t, 30*time.Second, cfg.Upload.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "FILEDOCK_DATABASE_URL=badger:///var/lib/filedock\n")
	t.Cleanup(func() { os.Unsetenv("FILEDOCK_DATABASE_URL") })

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "badger:///var/lib/filedock", cfg.Database.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"batch policy", map[string]string{"FILEDOCK_UPLOAD_BATCH_POLICY": "sometimes"}},
		{"max file size", map[string]string{"FILEDOCK_UPLOAD_MAX_FILE_SIZE": "0"}},
		{"public base relative", map[string]string{"FILEDOCK_UPLOAD_PUBLIC_BASE": "uploads"}},
		{"public base shadows api", map[string]string{"FILEDOCK_UPLOAD_PUBLIC_BASE": "/api/raw"}},
		{"public base root", map[string]string{"FILEDOCK_UPLOAD_PUBLIC_BASE": "/"}},
		{"log format", map[string]string{"FILEDOCK_LOG_FORMAT": "xml"}},
		{"log level", map[string]string{"FILEDOCK_LOG_LEVEL": "verbose"}},
		{"prod wildcard cors", map[string]string{"FILEDOCK_APP_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", Overrides{})
			assert.Error(t, err)
		})
	}
}

func TestLoad_LogLevelSpellings(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"INFO":    "info",
		"warn":    "warn",
		"Warning": "warn",
		" error ": "error",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cfg, err := Load("", Overrides{LogLevel: in})
			require.NoError(t, err)
			assert.Equal(t, want, cfg.Log.Level)
		})
	}
}

func TestLoad_ProdWithExplicitOrigins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FILEDOCK_APP_ENV", "Release")
	t.Setenv("FILEDOCK_CORS_ALLOWED_ORIGINS", "https://files.example.com")

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)
	assert.True(t, cfg.IsProdLike())
	assert.False(t, cfg.CORSAllowsAll())
	assert.Equal(t, []string{"https://files.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), Overrides{})
	assert.Error(t, err)
}
