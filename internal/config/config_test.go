package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.EqualValues(t, 0x0A5F, cfg.USB.VendorID)
	assert.Equal(t, time.Second, cfg.USB.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.USB.MonitorInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "profiles.json", cfg.Registry.Path)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  address: ":9000"
log:
  level: debug
  format: json
usb:
  read_timeout: 250ms
  queues:
    - name: ZDesigner GK420d
      port: USB003
redis:
  addr: localhost:6379
  channel: labels
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.USB.ReadTimeout)
	assert.Equal(t, map[string]string{"ZDesigner GK420d": "USB003"}, cfg.USB.QueueMap())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "labels", cfg.Redis.Channel)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("LABEL_DISPATCH_SERVER_ADDRESS", "0.0.0.0:7000")
	t.Setenv("LABEL_DISPATCH_METRICS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.Server.Address)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
