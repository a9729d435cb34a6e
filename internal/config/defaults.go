package config

import (
	"time"

	"agenthook/internal/webhook"
	"agenthook/pkg/task"
)

const (
	DefaultWebhookHost    = "127.0.0.1"
	DefaultWebhookPath    = "/webhook"
	DefaultWebhookTimeout = 5 * time.Minute

	DefaultTunnelCommand          = "cloudflared"
	DefaultTunnelDiscoveryTimeout = 10 * time.Second

	DefaultOAuthCallbackPort = 8765
	DefaultOAuthCallbackPath = "/callback"
	DefaultOAuthClientName   = "agenthook"
	DefaultOAuthTimeout      = 5 * time.Minute

	DefaultAgentTimeout    = 60 * time.Second
	DefaultAuthHeader      = "Authorization"
	DefaultSignatureHeader = webhook.DefaultSignatureHeader
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() Config {
	reportKinds := make([]string, 0, len(task.DefaultReportKinds))
	for _, k := range task.DefaultReportKinds {
		reportKinds = append(reportKinds, string(k))
	}

	return Config{
		Webhook: WebhookConfig{
			Host:            DefaultWebhookHost,
			Path:            DefaultWebhookPath,
			SignatureHeader: DefaultSignatureHeader,
			Timeout:         DefaultWebhookTimeout,
			ReportKinds:     reportKinds,
		},
		Tunnel: TunnelConfig{
			Command:          DefaultTunnelCommand,
			DiscoveryTimeout: DefaultTunnelDiscoveryTimeout,
		},
		OAuth: OAuthConfig{
			CallbackPort: DefaultOAuthCallbackPort,
			CallbackPath: DefaultOAuthCallbackPath,
			ClientName:   DefaultOAuthClientName,
			Timeout:      DefaultOAuthTimeout,
			FileMode:     true,
		},
	}
}

// applyAgentDefaults fills per-agent defaults after loading.
func (c *Config) applyAgentDefaults() {
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.Protocol == "" {
			a.Protocol = ProtocolMCP
		}
		if a.AuthHeader == "" {
			a.AuthHeader = DefaultAuthHeader
		}
		if a.Timeout == 0 {
			a.Timeout = DefaultAgentTimeout
		}
	}
}
