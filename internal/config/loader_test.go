package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnviron replaces the process environment seen by the loader.
func withEnviron(t *testing.T, vars ...string) {
	t.Helper()
	original := environ
	environ = func() []string { return vars }
	t.Cleanup(func() { environ = original })
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	withEnviron(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_File(t *testing.T) {
	withEnviron(t, "SALES_TOKEN=from-env")
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
agents:
  - id: sales
    uri: https://sales.example.com/mcp
    authToken: Bearer ${SALES_TOKEN}
  - id: creative
    uri: https://creative.example.com/a2a
    protocol: a2a
    oauth: true
    timeout: 2m
webhook:
  port: 9090
  urlTemplate: /hooks/{task_type}/{operation_id}
  timeout: 30s
tunnel:
  enabled: true
  discoveryTimeout: 15s
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 2)

	sales, ok := cfg.Agent("sales")
	require.True(t, ok)
	assert.Equal(t, ProtocolMCP, sales.Protocol, "protocol defaults to mcp")
	assert.Equal(t, "Bearer from-env", sales.AuthToken)
	assert.Equal(t, DefaultAuthHeader, sales.AuthHeader)
	assert.Equal(t, DefaultAgentTimeout, sales.Timeout)

	creative, ok := cfg.Agent("creative")
	require.True(t, ok)
	assert.Equal(t, ProtocolA2A, creative.Protocol)
	assert.Equal(t, 2*time.Minute, creative.Timeout)

	assert.Equal(t, 9090, cfg.Webhook.Port)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, DefaultWebhookPath, cfg.Webhook.Path, "unset fields keep defaults")
	assert.True(t, cfg.Tunnel.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Tunnel.DiscoveryTimeout)
	assert.Equal(t, DefaultTunnelCommand, cfg.Tunnel.Command)

	_, ok = cfg.Agent("missing")
	assert.False(t, ok)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Malformed(t *testing.T) {
	withEnviron(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "agents: [\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var cfgErr ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.ErrorType)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfgErr.FilePath)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
agents:
  - id: sales-agent
    uri: https://sales.example.com/mcp
webhook:
  secret: ${HOOK_SECRET}
`)
	writeFile(t, dir, ".env", "HOOK_SECRET=dotenv-secret\nAGENTHOOK_WEBHOOK_PORT=7000\n")

	t.Run("dotenv and process environment", func(t *testing.T) {
		withEnviron(t,
			"AGENTHOOK_WEBHOOK_PORT=7100",
			"AGENTHOOK_TUNNEL_ENABLED=true",
			"AGENTHOOK_WEBHOOK_TIMEOUT=90s",
			"AGENTHOOK_AGENT_SALES_AGENT_TOKEN=per-agent",
		)

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "dotenv-secret", cfg.Webhook.Secret)
		assert.Equal(t, 7100, cfg.Webhook.Port, "process environment wins over .env")
		assert.True(t, cfg.Tunnel.Enabled)
		assert.Equal(t, 90*time.Second, cfg.Webhook.Timeout)
		assert.Equal(t, "per-agent", cfg.Agents[0].AuthToken)
	})

	t.Run("invalid values are collected", func(t *testing.T) {
		withEnviron(t,
			"AGENTHOOK_WEBHOOK_PORT=eighty",
			"AGENTHOOK_TUNNEL_ENABLED=maybe",
		)

		_, err := LoadConfig(dir)
		require.Error(t, err)

		var coll *ConfigurationErrorCollection
		require.True(t, errors.As(err, &coll))
		assert.Equal(t, 2, coll.Count())
		assert.Len(t, coll.GetErrorsByCategory("env"), 2)
	})
}

func TestLoadConfig_MissingVariable(t *testing.T) {
	withEnviron(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
webhook:
  secret: ${NOT_SET}
`)

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_SET")
}

func TestGetDefaultConfigPath(t *testing.T) {
	original := osUserHomeDir
	defer func() { osUserHomeDir = original }()

	osUserHomeDir = func() (string, error) { return "/home/test", nil }
	path, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/test", ".config/agenthook"), path)

	osUserHomeDir = func() (string, error) { return "", errors.New("no home") }
	_, err = GetDefaultConfigPath()
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "SALES_AGENT_1", envKey("sales-agent.1"))
}
