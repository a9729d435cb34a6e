package oauth

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	pkgoauth "agenthook/pkg/oauth"
)

// tokenExpiryBuffer is the margin applied when checking token validity, to
// cover clock skew and calls that run for a while.
const tokenExpiryBuffer = 60 * time.Second

// StoredToken is an OAuth token as persisted.
type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewStoredToken captures an oauth2.Token for storage.
func NewStoredToken(token *oauth2.Token) *StoredToken {
	stored := &StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		CreatedAt:    time.Now(),
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		stored.IDToken = idToken
	}
	return stored
}

// Valid reports whether the access token is present and not about to expire.
// Tokens without an expiry are treated as valid.
func (t *StoredToken) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(tokenExpiryBuffer).Before(t.Expiry)
}

// ToOAuth2Token converts a StoredToken to an oauth2.Token.
func (t *StoredToken) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return token
}

// PendingVerifier is the PKCE verifier of an authorization that has been
// started but not yet exchanged.
type PendingVerifier struct {
	CodeVerifier string    `json:"code_verifier"`
	State        string    `json:"state"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// Credentials is everything stored for one agent.
type Credentials struct {
	AgentID  string                      `json:"agent_id"`
	Issuer   string                      `json:"issuer,omitempty"`
	Token    *StoredToken                `json:"token,omitempty"`
	Client   *pkgoauth.ClientInformation `json:"client,omitempty"`
	Verifier *PendingVerifier            `json:"verifier,omitempty"`
}

// Empty reports whether nothing is left worth storing.
func (c *Credentials) Empty() bool {
	return c == nil || (c.Token == nil && c.Client == nil && c.Verifier == nil)
}

// Scope selects which credentials Invalidate removes.
type Scope string

const (
	// ScopeTokens removes the access and refresh tokens.
	ScopeTokens Scope = "tokens"

	// ScopeClient removes the registered client information.
	ScopeClient Scope = "client"

	// ScopeVerifier removes the pending PKCE verifier.
	ScopeVerifier Scope = "verifier"

	// ScopeAll removes everything stored for the agent.
	ScopeAll Scope = "all"
)

// ParseScope parses a scope name.
func ParseScope(s string) (Scope, error) {
	switch scope := Scope(strings.ToLower(strings.TrimSpace(s))); scope {
	case ScopeTokens, ScopeClient, ScopeVerifier, ScopeAll:
		return scope, nil
	case "":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("unknown credential scope %q (want tokens, client, verifier or all)", s)
	}
}

// apply removes the credentials selected by scope.
func (s Scope) apply(c *Credentials) {
	switch s {
	case ScopeTokens:
		c.Token = nil
	case ScopeClient:
		c.Client = nil
	case ScopeVerifier:
		c.Verifier = nil
	case ScopeAll:
		c.Token = nil
		c.Client = nil
		c.Verifier = nil
		c.Issuer = ""
	}
}
