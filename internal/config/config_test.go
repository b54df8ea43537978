package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
system:
  device_id: dev-01
auth:
  auth_url: https://auth.example.com
  client_id: abc
mqueue:
  listen_address: /tmp/remote-bus.sock
  servers:
    core: /tmp/core-bus.sock
    scheduler: /tmp/scheduler-bus.sock
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "dev-01", cfg.System.DeviceID)
	require.True(t, cfg.Websocket.Enabled)
	require.Equal(t, "dunebugger", cfg.Websocket.GroupName)
	require.Equal(t, []string{"pool.ntp.org"}, cfg.NTP.Servers)
}

func TestLoadRejectsMissingDeviceID(t *testing.T) {
	path := writeConfigFile(t, `
mqueue:
  listen_address: /tmp/remote-bus.sock
  servers:
    core: /tmp/core-bus.sock
    scheduler: /tmp/scheduler-bus.sock
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsWebsocketWithoutAuth(t *testing.T) {
	path := writeConfigFile(t, `
system:
  device_id: dev-01
mqueue:
  listen_address: /tmp/remote-bus.sock
  servers:
    core: /tmp/core-bus.sock
    scheduler: /tmp/scheduler-bus.sock
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsEmptyMQueueServers(t *testing.T) {
	cfg := &Config{
		System: SystemConfig{DeviceID: "dev-01"},
		MQueue: MQueueConfig{ListenAddress: "/tmp/remote-bus.sock"},
		NTP:    NTPConfig{Servers: []string{"pool.ntp.org"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "Servers")
}

func TestSecretFileOverridesClientSecret(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("super-secret\n"), 0o600))
	t.Setenv("SUPERVISOR_AUTH_CLIENT_SECRET_FILE", secretPath)

	path := writeConfigFile(t, `
system:
  device_id: dev-01
auth:
  auth_url: https://auth.example.com
  client_id: abc
  client_secret: placeholder
mqueue:
  listen_address: /tmp/remote-bus.sock
  servers:
    core: /tmp/core-bus.sock
    scheduler: /tmp/scheduler-bus.sock
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "super-secret", cfg.Auth.ClientSecret)
}
