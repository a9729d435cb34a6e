package auth

import "time"

// StatusResponse is the authorization state of every reported agent.
type StatusResponse struct {
	Agents []AgentAuthStatus `json:"agents" yaml:"agents"`
}

// AgentAuthStatus describes what is stored for one agent.
type AgentAuthStatus struct {
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// State is one of: "authorized", "expired", "no-credentials",
	// "pending-authorization", "exchanging", "invalid"
	State string `json:"state" yaml:"state"`

	// LoginRequired is set when a call would need the browser flow.
	LoginRequired bool `json:"login_required" yaml:"login_required"`

	Issuer          string     `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ClientID        string     `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token" yaml:"has_refresh_token"`
}

// Usable reports whether the agent can be called without a login: either
// the access token is valid or it can be refreshed.
func (s AgentAuthStatus) Usable() bool {
	return !s.LoginRequired
}

// NeedsLogin returns the ids of the agents that require a browser login.
func (r StatusResponse) NeedsLogin() []string {
	var ids []string
	for _, a := range r.Agents {
		if a.LoginRequired {
			ids = append(ids, a.AgentID)
		}
	}
	return ids
}
