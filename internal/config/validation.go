package config

import (
	"fmt"
	"net/url"
	"strings"

	"agenthook/internal/webhook"
)

// Validate checks the whole configuration and reports every problem as a
// *ConfigurationErrorCollection. It returns nil when the configuration is
// usable.
func (c *Config) Validate() error {
	errs := NewConfigurationErrorCollection()
	c.validateAgents(errs)
	c.validateWebhook(errs)
	c.validateTunnel(errs)
	c.validateOAuth(errs)
	return errs.errOrNil()
}

func (c *Config) validateAgents(errs *ConfigurationErrorCollection) {
	seen := make(map[string]int, len(c.Agents))
	for i, a := range c.Agents {
		field := fmt.Sprintf("agents[%d]", i)

		if strings.TrimSpace(a.ID) == "" {
			errs.AddValidation("agents", field+".id", "is required")
		} else if first, dup := seen[a.ID]; dup {
			errs.AddValidation("agents", field+".id",
				fmt.Sprintf("duplicate agent id %q (also agents[%d])", a.ID, first),
				"Give every agent a unique id")
		} else {
			seen[a.ID] = i
		}

		if err := validateHTTPURL(a.URI); err != nil {
			errs.AddValidation("agents", field+".uri", err.Error())
		}

		switch a.Protocol {
		case ProtocolMCP, ProtocolA2A, "":
		default:
			errs.AddValidation("agents", field+".protocol",
				fmt.Sprintf("unknown protocol %q", a.Protocol),
				"Use \"mcp\" or \"a2a\"")
		}

		if a.OAuth && a.AuthToken != "" {
			errs.AddValidation("agents", field,
				"authToken and oauth are mutually exclusive",
				"Remove authToken to use the browser flow, or set oauth: false")
		}
	}
}

func (c *Config) validateWebhook(errs *ConfigurationErrorCollection) {
	w := c.Webhook

	if w.Port < 0 || w.Port > 65535 {
		errs.AddValidation("webhook", "webhook.port", fmt.Sprintf("port %d out of range", w.Port))
	}
	if w.Path != "" && !strings.HasPrefix(w.Path, "/") {
		errs.AddValidation("webhook", "webhook.path", "must start with /")
	}

	if w.URLTemplate != "" {
		if err := webhook.ValidateTemplate(w.URLTemplate); err != nil {
			errs.Add(ConfigurationError{
				Source:      "file",
				Category:    "webhook",
				Field:       "webhook.urlTemplate",
				ErrorType:   "validation",
				Message:     err.Error(),
				Suggestions: []string{"Include {operation_id}, e.g. /webhook/{task_type}/{agent_id}/{operation_id}"},
				Err:         err,
			})
		}
	}

	if w.PublicURL != "" {
		if err := validateHTTPURL(w.PublicURL); err != nil {
			errs.AddValidation("webhook", "webhook.publicUrl", err.Error())
		}
	}

	if w.RequireSignature && w.Secret == "" {
		errs.Add(ConfigurationError{
			Source:      "file",
			Category:    "webhook",
			Field:       "webhook.secret",
			ErrorType:   "validation",
			Message:     webhook.ErrSecretRequired.Error(),
			Suggestions: []string{"Set webhook.secret or AGENTHOOK_WEBHOOK_SECRET"},
			Err:         webhook.ErrSecretRequired,
		})
	}

	if w.Timeout < 0 {
		errs.AddValidation("webhook", "webhook.timeout", "must not be negative")
	}
	if w.MaxClarificationRounds < 0 {
		errs.AddValidation("webhook", "webhook.maxClarificationRounds", "must not be negative")
	}
}

func (c *Config) validateTunnel(errs *ConfigurationErrorCollection) {
	if c.Tunnel.Enabled && strings.TrimSpace(c.Tunnel.Command) == "" {
		errs.AddValidation("tunnel", "tunnel.command", "is required when the tunnel is enabled")
	}
	if c.Tunnel.Enabled && c.Webhook.PublicURL != "" {
		errs.AddValidation("tunnel", "tunnel.enabled",
			"a tunnel and webhook.publicUrl cannot both be used",
			"Disable the tunnel or remove webhook.publicUrl")
	}
}

func (c *Config) validateOAuth(errs *ConfigurationErrorCollection) {
	o := c.OAuth
	if o.CallbackPort < 0 || o.CallbackPort > 65535 {
		errs.AddValidation("oauth", "oauth.callbackPort", fmt.Sprintf("port %d out of range", o.CallbackPort))
	}
	if o.CallbackPath != "" && !strings.HasPrefix(o.CallbackPath, "/") {
		errs.AddValidation("oauth", "oauth.callbackPath", "must start with /")
	}
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
