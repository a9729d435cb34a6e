package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout bounds each discovery and registration request.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is how long discovered metadata is reused.
	DefaultMetadataCacheTTL = 30 * time.Minute

	maxResponseBytes = 1 << 20
)

// ErrRegistrationUnsupported is returned when the server has no registration endpoint.
var ErrRegistrationUnsupported = errors.New("authorization server does not support dynamic client registration")

type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Client performs the metadata and registration requests of an OAuth flow.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration

	// metadataGroup collapses concurrent discoveries of the same issuer.
	metadataGroup singleflight.Group
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetadataCacheTTL sets how long discovered metadata is cached.
func WithMetadataCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.metadataTTL = ttl
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		logger:        slog.Default(),
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the HTTP client in use.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// DiscoverMetadata fetches the issuer's metadata from
// /.well-known/oauth-authorization-server, falling back to
// /.well-known/openid-configuration. Results are cached per issuer.
func (c *Client) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	if md := c.cachedMetadata(issuer); md != nil {
		return md, nil
	}

	result, err, _ := c.metadataGroup.Do(issuer, func() (interface{}, error) {
		if md := c.cachedMetadata(issuer); md != nil {
			return md, nil
		}
		return c.doDiscoverMetadata(ctx, issuer)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

func (c *Client) cachedMetadata(issuer string) *Metadata {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	if entry, ok := c.metadataCache[issuer]; ok && time.Since(entry.fetchedAt) < c.metadataTTL {
		return entry.metadata
	}
	return nil
}

func (c *Client) doDiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	var lastErr error
	for _, wellKnown := range wellKnownURLs(issuer) {
		var md Metadata
		if err := c.getJSON(ctx, wellKnown, &md); err != nil {
			c.logger.Debug("Metadata discovery attempt failed",
				"url", wellKnown,
				"error", err)
			lastErr = err
			continue
		}
		if md.AuthorizationEndpoint == "" || md.TokenEndpoint == "" {
			lastErr = fmt.Errorf("metadata at %s lacks authorization or token endpoint", wellKnown)
			continue
		}

		c.metadataMu.Lock()
		c.metadataCache[issuer] = &metadataCacheEntry{metadata: &md, fetchedAt: time.Now()}
		c.metadataMu.Unlock()

		c.logger.Debug("Cached OAuth metadata",
			"issuer", issuer,
			"authorization_endpoint", md.AuthorizationEndpoint,
			"token_endpoint", md.TokenEndpoint,
			"registration_endpoint", md.RegistrationEndpoint)
		return &md, nil
	}
	return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", issuer, lastErr)
}

// wellKnownURLs lists the discovery documents for an issuer. Issuers with a
// path get the RFC 8414 path-insertion form first.
func wellKnownURLs(issuer string) []string {
	u, err := url.Parse(issuer)
	if err != nil || u.Path == "" || u.Path == "/" {
		return []string{
			issuer + "/.well-known/oauth-authorization-server",
			issuer + "/.well-known/openid-configuration",
		}
	}
	origin := u.Scheme + "://" + u.Host
	return []string{
		origin + "/.well-known/oauth-authorization-server" + u.Path,
		issuer + "/.well-known/oauth-authorization-server",
		issuer + "/.well-known/openid-configuration",
	}
}

// ClearMetadataCache drops every cached metadata document.
func (c *Client) ClearMetadataCache() {
	c.metadataMu.Lock()
	c.metadataCache = make(map[string]*metadataCacheEntry)
	c.metadataMu.Unlock()
}

// DiscoverProtectedResource fetches the resource's metadata. metadataURL
// may be empty, in which case the well-known location at the resource's
// origin is used.
func (c *Client) DiscoverProtectedResource(ctx context.Context, resourceURL, metadataURL string) (*ProtectedResourceMetadata, error) {
	if metadataURL == "" {
		u, err := url.Parse(resourceURL)
		if err != nil {
			return nil, fmt.Errorf("invalid resource URL: %w", err)
		}
		metadataURL = u.Scheme + "://" + u.Host + "/.well-known/oauth-protected-resource"
	}

	var prm ProtectedResourceMetadata
	if err := c.getJSON(ctx, metadataURL, &prm); err != nil {
		return nil, fmt.Errorf("failed to fetch protected resource metadata: %w", err)
	}
	return &prm, nil
}

// ResolveIssuer finds the authorization server for a remote agent. It
// prefers the resource metadata named by a challenge, then the well-known
// resource metadata, and finally treats the agent's origin as the issuer.
func (c *Client) ResolveIssuer(ctx context.Context, agentURL string, challenge *AuthChallenge) string {
	if issuer := challenge.GetIssuer(); issuer != "" {
		return issuer
	}

	metadataURL := ""
	if challenge != nil {
		metadataURL = challenge.ResourceMetadataURL
	}
	if prm, err := c.DiscoverProtectedResource(ctx, agentURL, metadataURL); err == nil && len(prm.AuthorizationServers) > 0 {
		return strings.TrimSuffix(prm.AuthorizationServers[0], "/")
	}

	u, err := url.Parse(agentURL)
	if err != nil || u.Host == "" {
		return agentURL
	}
	return u.Scheme + "://" + u.Host
}

// RegisterClient performs dynamic client registration.
func (c *Client) RegisterClient(ctx context.Context, registrationEndpoint string, md ClientMetadata) (*ClientInformation, error) {
	if registrationEndpoint == "" {
		return nil, ErrRegistrationUnsupported
	}

	body, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Debug("Client registration rejected",
			"status", resp.StatusCode,
			"endpoint", registrationEndpoint)
		return nil, fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var info ClientInformation
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("failed to parse registration response: %w", err)
	}
	if info.ClientID == "" {
		return nil, errors.New("registration response has no client_id")
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", target, err)
	}
	return nil
}
