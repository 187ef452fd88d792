package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsFromEnv(t *testing.T) {
	t.Setenv("FILE_API_URL", "http://files-api:8080/api")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, "2525", cfg.Server.Port)
	assert.Equal(t, "http://files-api:8080/api", cfg.FileAPI.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.FileAPI.Timeout)
	assert.Equal(t, int64(50<<20), cfg.Upload.MaxSize)
	assert.Equal(t, 10, cfg.Upload.MaxCount)
	assert.Equal(t, 3*time.Second, cfg.Upload.DismissAfter)
	assert.Equal(t, time.Second, cfg.Preview.ExternalGrace)
	assert.Equal(t, PreviewBackendMemory, cfg.Preview.Backend)
	assert.Equal(t, 1024, cfg.Preview.ThumbnailMaxSize)
	assert.Equal(t, 256, cfg.Catalog.Size)
	assert.Equal(t, 5*time.Second, cfg.Notice.TTL)
	assert.Equal(t, 15*time.Minute, cfg.S3.PresignTTL)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("FILE_API_URL", "http://files")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("UPLOAD_MAX_COUNT", "3")
	t.Setenv("UPLOAD_ERROR_DISMISS", "500ms")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("LOG_DEV", "true")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Upload.MaxCount)
	assert.Equal(t, 500*time.Millisecond, cfg.Upload.DismissAfter)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Log.Dev)
}

func TestNewConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
FileAPI:
  BaseURL: http://from-file
Share:
  BaseURL: https://share.test/s
Upload:
  MaxCount: 4
`), 0o600))

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-file", cfg.FileAPI.BaseURL)
	assert.Equal(t, "https://share.test/s", cfg.Share.BaseURL)
	assert.Equal(t, 4, cfg.Upload.MaxCount)
}

func TestNewConfig_Validation(t *testing.T) {
	_, err := NewConfig("")
	assert.ErrorContains(t, err, "FileAPI.BaseURL")

	t.Setenv("FILE_API_URL", "http://files")
	t.Setenv("PREVIEW_BACKEND", "s3")
	_, err = NewConfig("")
	assert.ErrorContains(t, err, "AccessKeyID")

	t.Setenv("PREVIEW_BACKEND", "disk")
	_, err = NewConfig("")
	assert.ErrorContains(t, err, "unknown preview backend")
}

func TestNewConfig_AllowedOriginsTrimmed(t *testing.T) {
	t.Setenv("FILE_API_URL", "http://files")
	t.Setenv("ALLOWED_ORIGINS", " https://a.test ,https://b.test,, https://c.test ")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test", "https://c.test"}, cfg.Server.AllowedOrigins)
}

func TestNewConfig_AllowedOriginsFromFileTrimmed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
FileAPI:
  BaseURL: http://from-file
Server:
  AllowedOrigins:
    - "https://a.test"
    - " https://b.test"
`), 0o600))

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
}
