package agent

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"agenthook/internal/config"
	pkgoauth "agenthook/pkg/oauth"
)

// Authorizer obtains tokens for an agent and can run the interactive
// authorization flow. *oauth.Coordinator implements it.
type Authorizer interface {
	TokenProvider
	EnsureToken(ctx context.Context, challenge *pkgoauth.AuthChallenge) (*oauth2.Token, error)
}

// Agent is a configured remote agent.
type Agent struct {
	Config    config.AgentConfig
	Transport Transport

	// Auth is nil for agents without OAuth.
	Auth Authorizer
}

// New creates an agent with the transport for its protocol.
func New(cfg config.AgentConfig, auth Authorizer, httpClient *http.Client) (*Agent, error) {
	var tokens TokenProvider
	if auth != nil {
		tokens = auth
	}
	tr, err := NewTransport(cfg, tokens, httpClient)
	if err != nil {
		return nil, err
	}
	return &Agent{Config: cfg, Transport: tr, Auth: auth}, nil
}

// ID returns the agent's configured id.
func (a *Agent) ID() string {
	return a.Config.ID
}

// Close releases the transport.
func (a *Agent) Close() error {
	return a.Transport.Close()
}
