package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"agenthook/internal/config"
	"agenthook/internal/oauth"
	"agenthook/internal/webhook"
	"agenthook/pkg/task"
)

const subsystem = "Agent"

// SignatureScheme is advertised to agents alongside the webhook secret.
const SignatureScheme = "HMAC-SHA256"

// Transport sends one task to a remote agent.
type Transport interface {
	// Call submits req and returns the agent's immediate answer. Agents
	// that finish synchronously return a terminal status; agents that
	// accept the task for later return submitted or working and report
	// the outcome to req.WebhookURL.
	Call(ctx context.Context, req Request) (*webhook.CallbackPayload, error)
	Close() error
}

// TokenProvider supplies OAuth access tokens. *oauth.Coordinator implements it.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// Request is one call to a remote agent.
type Request struct {
	OperationID string
	TaskKind    task.Kind
	Params      map[string]any

	// WebhookURL and WebhookSecret are passed to the agent for
	// asynchronous results. Both may be empty.
	WebhookURL    string
	WebhookSecret string

	// TaskID and ContextID continue an earlier exchange, and Input carries
	// the answer to an input-required question.
	TaskID    string
	ContextID string
	Input     string
}

// NewTransport returns the transport for the agent's protocol. tokens may
// be nil for agents without OAuth; httpClient may be nil.
func NewTransport(cfg config.AgentConfig, tokens TokenProvider, httpClient *http.Client) (Transport, error) {
	switch cfg.Protocol {
	case config.ProtocolMCP, "":
		return NewMCPTransport(cfg, tokens, httpClient), nil
	case config.ProtocolA2A:
		return NewA2ATransport(cfg, tokens, httpClient), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, cfg.Protocol)
	}
}

// buildHeaders assembles the request headers for an agent. A static token
// takes precedence over OAuth.
func buildHeaders(ctx context.Context, cfg config.AgentConfig, tokens TokenProvider) (map[string]string, error) {
	headers := make(map[string]string, len(cfg.Headers)+1)
	maps.Copy(headers, cfg.Headers)

	header := cfg.AuthHeader
	if header == "" {
		header = config.DefaultAuthHeader
	}

	switch {
	case cfg.AuthToken != "":
		headers[header] = authValue(header, cfg.AuthToken)
	case tokens != nil:
		tok, err := tokens.Token(ctx)
		if err != nil {
			if errors.Is(err, oauth.ErrAuthRequired) {
				return nil, &AuthRequiredError{AgentID: cfg.ID, Err: err}
			}
			return nil, err
		}
		headers["Authorization"] = tok.Type() + " " + tok.AccessToken
	}
	return headers, nil
}

// authValue adds the Bearer scheme for the standard Authorization header.
// Custom headers carry the raw token.
func authValue(header, token string) string {
	if !strings.EqualFold(header, "Authorization") {
		return token
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

// pushAuthentication is the authentication block sent with a webhook URL.
type pushAuthentication struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// pushNotificationConfig tells the agent where to report asynchronous results.
type pushNotificationConfig struct {
	URL            string              `json:"url"`
	Token          string              `json:"token,omitempty"`
	Authentication *pushAuthentication `json:"authentication,omitempty"`
}

func (r Request) pushConfig() *pushNotificationConfig {
	if r.WebhookURL == "" {
		return nil
	}
	cfg := &pushNotificationConfig{URL: r.WebhookURL, Token: r.OperationID}
	if r.WebhookSecret != "" {
		cfg.Authentication = &pushAuthentication{
			Schemes:     []string{SignatureScheme},
			Credentials: r.WebhookSecret,
		}
	}
	return cfg
}
