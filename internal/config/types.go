package config

import (
	"time"

	"agenthook/pkg/task"
)

// Config is the top-level configuration structure for agenthook.
type Config struct {
	Agents  []AgentConfig `yaml:"agents,omitempty"`
	Webhook WebhookConfig `yaml:"webhook"`
	Tunnel  TunnelConfig  `yaml:"tunnel"`
	OAuth   OAuthConfig   `yaml:"oauth"`
}

// Protocol is the wire protocol spoken by a remote agent.
type Protocol string

const (
	// ProtocolMCP calls the agent's tools over MCP streamable HTTP.
	ProtocolMCP Protocol = "mcp"
	// ProtocolA2A sends the agent A2A JSON-RPC messages.
	ProtocolA2A Protocol = "a2a"
)

// AgentConfig describes one remote agent.
type AgentConfig struct {
	ID       string   `yaml:"id"`
	URI      string   `yaml:"uri"`
	Protocol Protocol `yaml:"protocol,omitempty"` // default: mcp

	// AuthToken is sent in AuthHeader. Supports ${VAR} expansion.
	AuthToken  string            `yaml:"authToken,omitempty"`
	AuthHeader string            `yaml:"authHeader,omitempty"` // default: Authorization
	Headers    map[string]string `yaml:"headers,omitempty"`

	// OAuth enables the browser authorization flow for this agent.
	OAuth  bool     `yaml:"oauth,omitempty"`
	Scopes []string `yaml:"scopes,omitempty"`
	// Issuer skips authorization server discovery when set.
	Issuer   string `yaml:"issuer,omitempty"`
	ClientID string `yaml:"clientId,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"` // per-call timeout, default 60s
}

// WebhookConfig configures the callback listener and webhook URLs.
type WebhookConfig struct {
	Host string `yaml:"host,omitempty"` // default: 127.0.0.1
	Port int    `yaml:"port,omitempty"` // 0 picks an ephemeral port
	Path string `yaml:"path,omitempty"` // default: /webhook

	// URLTemplate may be absolute or a path joined to the public base URL.
	// It must contain {operation_id}.
	URLTemplate string `yaml:"urlTemplate,omitempty"`
	// PublicURL is the externally reachable base URL, when not tunnelling.
	PublicURL string `yaml:"publicUrl,omitempty"`

	Secret           string `yaml:"secret,omitempty"`
	SignatureHeader  string `yaml:"signatureHeader,omitempty"`
	RequireSignature bool   `yaml:"requireSignature,omitempty"`

	Timeout                time.Duration `yaml:"timeout,omitempty"` // default: 5m
	MaxClarificationRounds int           `yaml:"maxClarificationRounds,omitempty"`
	ReportKinds            []string      `yaml:"reportKinds,omitempty"`
}

// Kinds returns ReportKinds as task kinds.
func (w WebhookConfig) Kinds() []task.Kind {
	kinds := make([]task.Kind, 0, len(w.ReportKinds))
	for _, k := range w.ReportKinds {
		kinds = append(kinds, task.Kind(k))
	}
	return kinds
}

// TunnelConfig configures the tunnel process exposing the listener.
type TunnelConfig struct {
	Enabled          bool          `yaml:"enabled,omitempty"`
	Command          string        `yaml:"command,omitempty"` // default: cloudflared
	Args             []string      `yaml:"args,omitempty"`    // {port} is replaced
	DiscoveryTimeout time.Duration `yaml:"discoveryTimeout,omitempty"`
	GracePeriod      time.Duration `yaml:"gracePeriod,omitempty"`
}

// OAuthConfig configures the browser authorization flow.
type OAuthConfig struct {
	CallbackHost string        `yaml:"callbackHost,omitempty"`
	CallbackPort int           `yaml:"callbackPort,omitempty"` // default: 8765
	CallbackPath string        `yaml:"callbackPath,omitempty"` // default: /callback
	ClientName   string        `yaml:"clientName,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`

	// StorageDir holds credential files when FileMode is set.
	StorageDir string `yaml:"storageDir,omitempty"`
	FileMode   bool   `yaml:"fileMode,omitempty"`
}

// Agent returns the agent with the given ID.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}
