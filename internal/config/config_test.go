package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  jwt_secret: s3cret
minio:
  bucket: images
  prefix: photos
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(25<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "photos/", cfg.MinIO.Prefix)
	assert.Equal(t, 10*time.Second, cfg.Faces.Timeout)
	assert.False(t, cfg.Faces.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  jwt_secret: from-file
minio:
  bucket: images
`)
	t.Setenv("LASTSEEN_SERVER_PORT", "9100")
	t.Setenv("LASTSEEN_JWT_SECRET", "from-env")
	t.Setenv("LASTSEEN_MINIO_BUCKET", "other")
	t.Setenv("LASTSEEN_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
	assert.Equal(t, "other", cfg.MinIO.Bucket)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadValidation(t *testing.T) {
	path := writeConfig(t, `
faces:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.jwt_secret is required")
	assert.Contains(t, err.Error(), "minio.bucket is required")
	assert.Contains(t, err.Error(), "faces.url is required")
	assert.Contains(t, err.Error(), "nats.url is required")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "lastseen", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/lastseen?sslmode=disable", d.DSN())
}
