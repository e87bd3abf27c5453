package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RemoteLocal, cfg.Remote.Kind)
	assert.Equal(t, "runs/detect", cfg.Detector.Root)
	assert.Equal(t, []string{"python", "yolov5/detect.py"}, cfg.DetectorCommand())
	assert.Equal(t, DedupeMemory, cfg.Dedupe.Backend)
	assert.Equal(t, "submit", cfg.Dedupe.Policy)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, ":5001", cfg.MarkerAddr)
	assert.False(t, cfg.DurableDispatch())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REMOTE_KIND", "smb")
	t.Setenv("SMB_ADDR", "192.168.145.105")
	t.Setenv("SMB_SHARE", "siba")
	t.Setenv("SMB_DIR", "pothole")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("WORKERS", "8")
	t.Setenv("DEDUPE_POLICY", "success")
	t.Setenv("DBOS_SYSTEM_DATABASE_URL", "postgres://localhost/dbos")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RemoteSMB, cfg.Remote.Kind)
	assert.Equal(t, "pothole", cfg.Remote.SMB.Dir)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "success", cfg.Dedupe.Policy)
	assert.True(t, cfg.DurableDispatch())
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("TEST_S3_SECRET", "s3cr3t")

	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
remote:
  kind: s3
  s3:
    endpoint: localhost:9000
    bucket: captures
    secret_key: ${TEST_S3_SECRET}
stores:
  positive: /data/real
  negative: /data/fake
workers: 2
poll_interval: 10s
`), 0o644))
	t.Setenv("PIPELINE_CONFIG", path)
	t.Setenv("WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RemoteS3, cfg.Remote.Kind)
	assert.Equal(t, "captures", cfg.Remote.S3.Bucket)
	assert.Equal(t, "s3cr3t", cfg.Remote.S3.SecretKey)
	assert.Equal(t, "/data/real", cfg.Stores.Positive)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.Workers)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown remote":  {"REMOTE_KIND": "ftp"},
		"smb missing":     {"REMOTE_KIND": "smb"},
		"s3 missing":      {"REMOTE_KIND": "s3"},
		"postgres no url": {"DEDUPE_BACKEND": "postgres"},
		"redis no addr":   {"DEDUPE_BACKEND": "redis"},
		"bad policy":      {"DEDUPE_POLICY": "sometimes"},
		"same stores":     {"POSITIVE_STORE": "db", "NEGATIVE_STORE": "db"},
		"bad interval":    {"POLL_INTERVAL": "soon"},
		"bad workers":     {"WORKERS": "many"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMarkerIgnoresControllerSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REMOTE_KIND", "smb")
	t.Setenv("DEDUPE_BACKEND", "postgres")
	t.Setenv("DEDUPE_POLICY", "sometimes")
	t.Setenv("NEGATIVE_STORE", "/data/real")
	t.Setenv("POSITIVE_STORE", "/data/real")
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("MARKER_HTTP_ADDR", ":8080")

	_, err := Load()
	require.Error(t, err)

	cfg, err := LoadMarker()
	require.NoError(t, err)
	assert.Equal(t, "/data/real", cfg.Stores.Positive)
	assert.Equal(t, ":8080", cfg.MarkerAddr)
}

func TestLoadMarkerInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := LoadMarker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}
