package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/netcheck-agent/internal/checks"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Zero(t, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, checks.DefaultSettings(), cfg.CheckDefaults())
	assert.Empty(t, cfg.Agent.Metadata)
}

func TestLoad_FileEnvFlagsPrecedence(t *testing.T) {
	path := writeConfig(t, `
env: prod
agent:
  name: from-file
  token: file-token
  metadata:
    region: eu
server:
  url: ws://file:8080
reconnect:
  delay: 2s
  max_delay: 1m
  max_attempts: 5
checks:
  tcp_timeout: 3s
kafka:
  brokers: ["k1:9092"]
`)

	t.Setenv("AGENT_TOKEN", "env-token")
	t.Setenv("SERVER_URL", "ws://env:8080")
	t.Setenv("KAFKA_BROKERS", "k2:9092,k3:9092")

	cfg, err := Load([]string{"--config", path, "--server", "ws://flag:8080", "--max-reconnect-attempts", "7"})
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "from-file", cfg.Agent.Name)
	assert.Equal(t, "env-token", cfg.Agent.Token)
	assert.Equal(t, "ws://flag:8080", cfg.Server.URL)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 7, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Checks.TCPTimeout)
	assert.Equal(t, map[string]string{"region": "eu"}, cfg.Agent.Metadata)
	assert.Equal(t, []string{"k2:9092", "k3:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MetadataFlag(t *testing.T) {
	cfg, err := Load([]string{"--metadata", "region=eu,rack=r1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"region": "eu", "rack": "r1"}, cfg.Agent.Metadata)
}

func TestLoad_BadConfigFile(t *testing.T) {
	path := writeConfig(t, "agent: [unterminated")

	_, err := Load([]string{"--config", path})
	assert.Error(t, err)
}

func TestAgentOptions(t *testing.T) {
	cfg, err := Load([]string{"--token", "t", "--name", "edge-1", "--heartbeat-interval=-5s"})
	require.NoError(t, err)

	opts, err := cfg.AgentOptions()
	require.NoError(t, err)
	assert.Equal(t, "edge-1", opts.AgentName())
	assert.Equal(t, "t", opts.Token())
	assert.Zero(t, opts.HeartbeatInterval())

	cfg.Agent.Token = ""
	_, err = cfg.AgentOptions()
	assert.Error(t, err)
}
