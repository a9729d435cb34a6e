package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"agenthook/internal/callback"
	"agenthook/internal/events"
	pkgoauth "agenthook/pkg/oauth"
)

const (
	// DefaultTimeout bounds the wait for the browser callback.
	DefaultTimeout = 5 * time.Minute

	// DefaultClientName is sent with dynamic client registration.
	DefaultClientName = "agenthook"
)

// Config describes the agent a Coordinator authorizes against.
type Config struct {
	AgentID  string
	AgentURL string

	// Issuer skips authorization server discovery when set.
	Issuer string

	// ClientID and ClientSecret skip dynamic registration when set.
	ClientID     string
	ClientSecret string
	ClientName   string

	Scopes []string

	CallbackHost string
	// CallbackPort 0 binds an ephemeral port.
	CallbackPort int
	CallbackPath string

	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if c.CallbackPath == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Status summarizes what is stored for an agent.
type Status struct {
	AgentID         string
	State           State
	Issuer          string
	ClientID        string
	Expiry          time.Time
	HasRefreshToken bool
	PendingVerifier bool
}

// Coordinator obtains and keeps tokens for one agent.
type Coordinator struct {
	cfg      Config
	store    Store
	client   *pkgoauth.Client
	launcher Launcher
	events   *events.Emitter

	mu    sync.Mutex
	state State

	// flights makes concurrent callers share one refresh or authorization.
	flights singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore sets the credential store. Defaults to a MemoryStore.
func WithStore(store Store) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithClient sets the client used for discovery, registration and token
// requests.
func WithClient(client *pkgoauth.Client) Option {
	return func(c *Coordinator) {
		c.client = client
	}
}

// WithLauncher sets how the authorization URL is opened.
func WithLauncher(launcher Launcher) Option {
	return func(c *Coordinator) {
		c.launcher = launcher
	}
}

// WithEvents sets the lifecycle event emitter.
func WithEvents(emitter *events.Emitter) Option {
	return func(c *Coordinator) {
		c.events = emitter
	}
}

// New creates a Coordinator.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.AgentID == "" {
		return nil, errors.New("agent ID is required")
	}
	if cfg.AgentURL == "" && cfg.Issuer == "" {
		return nil, fmt.Errorf("agent %s: an agent URL or issuer is required", cfg.AgentID)
	}

	c := &Coordinator{
		cfg:   cfg.withDefaults(),
		state: StateNoCredentials,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.client == nil {
		c.client = pkgoauth.NewClient()
	}
	if c.launcher == nil {
		c.launcher = NewDefaultLauncher()
	}
	return c, nil
}

// AgentID returns the agent this coordinator serves.
func (c *Coordinator) AgentID() string {
	return c.cfg.AgentID
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(state State) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()

	if prev != state {
		slog.Debug("OAuth state changed",
			"agent_id", c.cfg.AgentID,
			"from", prev.String(),
			"to", state.String(),
		)
	}
}

// Token returns a valid stored token, refreshing it when possible. It never
// starts an interactive flow and returns ErrAuthRequired instead.
func (c *Coordinator) Token(ctx context.Context) (*oauth2.Token, error) {
	creds, err := c.load()
	if err != nil {
		return nil, err
	}

	if creds.Token.Valid() {
		c.setState(StateAuthorized)
		return creds.Token.ToOAuth2Token(), nil
	}
	if creds.Token == nil {
		c.setState(StateNoCredentials)
		return nil, ErrAuthRequired
	}

	c.setState(StateExpired)
	if creds.Token.RefreshToken == "" {
		return nil, ErrAuthRequired
	}

	v, err, _ := c.flights.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx, creds)
	})
	if err != nil {
		slog.Warn("OAuth token refresh failed",
			"agent_id", c.cfg.AgentID,
			"error", err.Error(),
		)
		c.setState(StateInvalid)
		return nil, fmt.Errorf("%w: refresh failed: %v", ErrAuthRequired, err)
	}
	c.setState(StateAuthorized)
	return v.(*oauth2.Token), nil
}

// EnsureToken returns a valid token, running the interactive authorization
// flow when none is stored and refresh is not possible. challenge may be nil.
func (c *Coordinator) EnsureToken(ctx context.Context, challenge *pkgoauth.AuthChallenge) (*oauth2.Token, error) {
	token, err := c.Token(ctx)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrAuthRequired) {
		return nil, err
	}
	return c.Authorize(ctx, challenge)
}

// Authorize runs the interactive flow unconditionally. Concurrent calls
// share one flow and its outcome.
func (c *Coordinator) Authorize(ctx context.Context, challenge *pkgoauth.AuthChallenge) (*oauth2.Token, error) {
	v, err, _ := c.flights.Do("authorize", func() (interface{}, error) {
		return c.authorize(ctx, challenge)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

func (c *Coordinator) authorize(ctx context.Context, challenge *pkgoauth.AuthChallenge) (*oauth2.Token, error) {
	creds, err := c.load()
	if err != nil {
		return nil, err
	}

	issuer := c.cfg.Issuer
	if issuer == "" {
		issuer = c.client.ResolveIssuer(ctx, c.cfg.AgentURL, challenge)
	}
	md, err := c.client.DiscoverMetadata(ctx, issuer)
	if err != nil {
		return nil, c.failed(fmt.Errorf("failed to discover OAuth metadata: %w", err))
	}
	if !md.SupportsPKCE() {
		return nil, c.failed(fmt.Errorf("authorization server %s does not support S256 PKCE", issuer))
	}

	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, c.failed(err)
	}

	server := callback.New(callback.Config{
		Host:   c.cfg.CallbackHost,
		Port:   c.cfg.CallbackPort,
		Path:   c.cfg.CallbackPath,
		ID:     "oauth-" + c.cfg.AgentID,
		Method: http.MethodGet,
	}, callbackReceiver(state))

	redirectURI, err := server.Start(ctx)
	if err != nil {
		return nil, c.failed(fmt.Errorf("failed to start callback server: %w", err))
	}

	clientInfo, err := c.clientFor(ctx, md, creds, redirectURI)
	if err != nil {
		_ = server.Close()
		return nil, c.failed(err)
	}

	// The verifier is stored before the browser opens so the exchange can
	// find it even if this process restarts in between.
	pkce := pkgoauth.GeneratePKCE()
	creds.Issuer = issuer
	if c.cfg.ClientID == "" {
		creds.Client = clientInfo
	}
	creds.Verifier = &PendingVerifier{
		CodeVerifier: pkce.CodeVerifier,
		State:        state,
		RedirectURI:  redirectURI,
		CreatedAt:    time.Now(),
	}
	if err := c.store.Save(creds); err != nil {
		_ = server.Close()
		return nil, c.failed(fmt.Errorf("failed to store PKCE verifier: %w", err))
	}

	conf := c.oauth2Config(md, clientInfo, redirectURI, challenge)
	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(pkce.CodeVerifier))

	c.setState(StatePendingAuthorization)
	c.events.Emit(events.ReasonAuthorizationStarted, events.EventData{Subject: issuer, AgentID: c.cfg.AgentID})
	slog.Info("Starting OAuth authorization",
		"agent_id", c.cfg.AgentID,
		"issuer", issuer,
		"redirect_uri", redirectURI,
	)

	if err := c.launcher.OpenURL(authURL); err != nil {
		slog.Warn("Failed to open authorization URL", "agent_id", c.cfg.AgentID, "error", err.Error())
	}

	result, err := server.Wait(ctx, c.cfg.Timeout)
	if err != nil {
		return nil, c.failed(err)
	}

	c.setState(StateExchanging)
	token, err := c.exchange(ctx, conf, state, result.Code)
	if err != nil {
		return nil, c.failed(fmt.Errorf("token exchange failed: %w", err))
	}

	c.setState(StateAuthorized)
	c.events.Emit(events.ReasonAuthorizationCompleted, events.EventData{Subject: issuer, AgentID: c.cfg.AgentID})
	slog.Info("OAuth authentication successful",
		"agent_id", c.cfg.AgentID,
		"issuer", issuer,
	)
	return token, nil
}

// exchange trades the code for a token using the stored verifier, then
// stores the token and deletes the verifier.
func (c *Coordinator) exchange(ctx context.Context, conf *oauth2.Config, state, code string) (*oauth2.Token, error) {
	creds, err := c.load()
	if err != nil {
		return nil, err
	}
	if creds.Verifier == nil || creds.Verifier.State != state {
		return nil, ErrMissingVerifier
	}

	token, err := conf.Exchange(c.httpContext(ctx), code, oauth2.VerifierOption(creds.Verifier.CodeVerifier))
	if err != nil {
		return nil, err
	}

	creds.Token = NewStoredToken(token)
	creds.Verifier = nil
	if err := c.store.Save(creds); err != nil {
		slog.Warn("Failed to persist OAuth token",
			"agent_id", c.cfg.AgentID,
			"error", err.Error(),
		)
		// The stored record still holds the used verifier.
		if err := c.store.Delete(c.cfg.AgentID); err != nil {
			slog.Warn("Failed to delete used PKCE verifier",
				"agent_id", c.cfg.AgentID,
				"error", err.Error(),
			)
		}
	}
	return token, nil
}

func (c *Coordinator) refresh(ctx context.Context, creds *Credentials) (*oauth2.Token, error) {
	if creds.Issuer == "" {
		return nil, errors.New("no issuer stored")
	}
	md, err := c.client.DiscoverMetadata(ctx, creds.Issuer)
	if err != nil {
		return nil, err
	}

	clientInfo := creds.Client
	if c.cfg.ClientID != "" {
		clientInfo = &pkgoauth.ClientInformation{ClientID: c.cfg.ClientID, ClientSecret: c.cfg.ClientSecret}
	}
	if clientInfo == nil {
		return nil, errors.New("no client information stored")
	}

	conf := c.oauth2Config(md, clientInfo, "", nil)
	// An empty access token forces the token source to refresh.
	token, err := conf.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: creds.Token.RefreshToken}).Token()
	if err != nil {
		return nil, err
	}

	creds.Token = NewStoredToken(token)
	if err := c.store.Save(creds); err != nil {
		slog.Warn("Failed to persist refreshed OAuth token",
			"agent_id", c.cfg.AgentID,
			"error", err.Error(),
		)
	}
	slog.Debug("Refreshed OAuth token", "agent_id", c.cfg.AgentID)
	return token, nil
}

// clientFor returns the client to authorize as: the configured one, a
// stored registration still valid for redirectURI, or a new registration.
func (c *Coordinator) clientFor(ctx context.Context, md *pkgoauth.Metadata, creds *Credentials, redirectURI string) (*pkgoauth.ClientInformation, error) {
	if c.cfg.ClientID != "" {
		return &pkgoauth.ClientInformation{ClientID: c.cfg.ClientID, ClientSecret: c.cfg.ClientSecret}, nil
	}

	if stored := creds.Client; stored != nil && !stored.SecretExpired() &&
		(len(stored.RedirectURIs) == 0 || slices.Contains(stored.RedirectURIs, redirectURI)) {
		return stored, nil
	}

	info, err := c.client.RegisterClient(ctx, md.RegistrationEndpoint, pkgoauth.ClientMetadata{
		ClientName:              c.cfg.ClientName,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		Scope:                   strings.Join(c.cfg.Scopes, " "),
	})
	if err != nil {
		return nil, fmt.Errorf("client registration failed: %w", err)
	}
	if len(info.RedirectURIs) == 0 {
		info.RedirectURIs = []string{redirectURI}
	}

	slog.Info("Registered OAuth client",
		"agent_id", c.cfg.AgentID,
		"client_id", info.ClientID,
	)
	return info, nil
}

func (c *Coordinator) oauth2Config(md *pkgoauth.Metadata, client *pkgoauth.ClientInformation, redirectURI string, challenge *pkgoauth.AuthChallenge) *oauth2.Config {
	scopes := c.cfg.Scopes
	if len(scopes) == 0 && challenge != nil && challenge.Scope != "" {
		scopes = strings.Fields(challenge.Scope)
	}

	authStyle := oauth2.AuthStyleAutoDetect
	if client.ClientSecret == "" {
		authStyle = oauth2.AuthStyleInParams
	}

	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   md.AuthorizationEndpoint,
			TokenURL:  md.TokenEndpoint,
			AuthStyle: authStyle,
		},
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}

func (c *Coordinator) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.client.HTTPClient())
}

// failed records a failed attempt. The pending verifier is dropped since
// its callback listener is gone.
func (c *Coordinator) failed(err error) error {
	if creds, loadErr := c.load(); loadErr == nil && creds.Verifier != nil {
		creds.Verifier = nil
		_ = c.save(creds)
	}

	var cancelled *UserCancelledError
	if errors.As(err, &cancelled) {
		cancelled.AgentID = c.cfg.AgentID
		c.setState(StateNoCredentials)
		c.events.Emit(events.ReasonAuthorizationCancelled, events.EventData{AgentID: c.cfg.AgentID})
		slog.Info("OAuth authorization cancelled by user", "agent_id", c.cfg.AgentID)
		return err
	}

	c.setState(StateInvalid)
	c.events.Emit(events.ReasonAuthorizationFailed, events.EventData{AgentID: c.cfg.AgentID, Error: err.Error()})
	slog.Warn("OAuth authorization failed",
		"agent_id", c.cfg.AgentID,
		"error", err.Error(),
	)
	return err
}

// Invalidate removes the credentials selected by scope.
func (c *Coordinator) Invalidate(scope Scope) error {
	creds, err := c.load()
	if err != nil {
		return err
	}

	switch scope {
	case ScopeTokens, ScopeClient, ScopeVerifier, ScopeAll:
	default:
		return fmt.Errorf("unknown credential scope %q", scope)
	}

	scope.apply(creds)
	if err := c.save(creds); err != nil {
		return fmt.Errorf("failed to invalidate %s credentials: %w", scope, err)
	}

	if scope == ScopeTokens || scope == ScopeAll {
		c.setState(StateNoCredentials)
	}
	c.events.Emit(events.ReasonCredentialsInvalidated, events.EventData{Subject: string(scope), AgentID: c.cfg.AgentID})
	slog.Info("Invalidated OAuth credentials",
		"agent_id", c.cfg.AgentID,
		"scope", string(scope),
	)
	return nil
}

// Status reports what is stored for the agent.
func (c *Coordinator) Status() (*Status, error) {
	creds, err := c.load()
	if err != nil {
		return nil, err
	}

	status := &Status{
		AgentID:         c.cfg.AgentID,
		Issuer:          creds.Issuer,
		PendingVerifier: creds.Verifier != nil,
	}
	if creds.Client != nil {
		status.ClientID = creds.Client.ClientID
	} else {
		status.ClientID = c.cfg.ClientID
	}
	if creds.Token != nil {
		status.Expiry = creds.Token.Expiry
		status.HasRefreshToken = creds.Token.RefreshToken != ""
	}

	switch current := c.State(); {
	case current == StatePendingAuthorization, current == StateExchanging, current == StateInvalid:
		status.State = current
	case creds.Token.Valid():
		status.State = StateAuthorized
	case creds.Token != nil:
		status.State = StateExpired
	default:
		status.State = StateNoCredentials
	}
	return status, nil
}

// load never returns nil credentials without an error.
func (c *Coordinator) load() (*Credentials, error) {
	creds, err := c.store.Load(c.cfg.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials for %s: %w", c.cfg.AgentID, err)
	}
	if creds == nil {
		creds = &Credentials{AgentID: c.cfg.AgentID}
	}
	return creds, nil
}

func (c *Coordinator) save(creds *Credentials) error {
	if creds.Empty() {
		return c.store.Delete(c.cfg.AgentID)
	}
	return c.store.Save(creds)
}
