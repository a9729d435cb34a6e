package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"agenthook/internal/completion"
	"agenthook/internal/events"
	pkgoauth "agenthook/pkg/oauth"
)

// authServer is a minimal authorization server with dynamic registration
// and a token endpoint that checks PKCE.
type authServer struct {
	*httptest.Server

	mu            sync.Mutex
	challenge     string
	registrations int
	exchanges     int
	refreshes     int
	lastVerifier  string
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	as := &authServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(pkgoauth.Metadata{
			Issuer:                        as.URL,
			AuthorizationEndpoint:         as.URL + "/authorize",
			TokenEndpoint:                 as.URL + "/token",
			RegistrationEndpoint:          as.URL + "/register",
			CodeChallengeMethodsSupported: []string{"S256"},
		})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var md pkgoauth.ClientMetadata
		_ = json.NewDecoder(r.Body).Decode(&md)
		as.mu.Lock()
		as.registrations++
		as.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(pkgoauth.ClientInformation{ClientID: "registered-client", RedirectURIs: md.RedirectURIs})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		as.mu.Lock()
		defer as.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			as.exchanges++
			as.lastVerifier = r.Form.Get("code_verifier")
			if r.Form.Get("code") != "abc123" || oauth2.S256ChallengeFromVerifier(as.lastVerifier) != as.challenge {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"access-1","token_type":"Bearer","refresh_token":"refresh-1","expires_in":3600}`)
		case "refresh_token":
			as.refreshes++
			if r.Form.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Close)
	return as
}

// browser stands in for the user's browser: it follows the authorization
// URL straight to the callback with the given query.
type browser struct {
	t      *testing.T
	as     *authServer
	query  func(state string) url.Values
	opened chan string
}

func (b *browser) OpenURL(authURL string) error {
	u, err := url.Parse(authURL)
	require.NoError(b.t, err)
	q := u.Query()

	b.as.mu.Lock()
	b.as.challenge = q.Get("code_challenge")
	b.as.mu.Unlock()

	callbackURL := q.Get("redirect_uri") + "?" + b.query(q.Get("state")).Encode()
	if b.opened != nil {
		b.opened <- callbackURL
	}
	go func() {
		resp, err := http.Get(callbackURL)
		if err == nil {
			resp.Body.Close()
		}
	}()
	return nil
}

func newTestCoordinator(t *testing.T, as *authServer, query func(state string) url.Values, opts ...Option) (*Coordinator, *MemoryStore, *events.Recorder) {
	t.Helper()
	store := NewMemoryStore()
	rec := &events.Recorder{}
	base := []Option{
		WithStore(store),
		WithEvents(events.NewEmitter(rec)),
		WithClient(pkgoauth.NewClient(pkgoauth.WithHTTPClient(as.Client()))),
		WithLauncher(&browser{t: t, as: as, query: query}),
	}
	c, err := New(Config{
		AgentID: "agent-1",
		Issuer:  as.URL,
		Timeout: 5 * time.Second,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return c, store, rec
}

func approve(state string) url.Values {
	return url.Values{"code": {"abc123"}, "state": {state}}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{AgentID: "a"})
	assert.Error(t, err)

	c, err := New(Config{AgentID: "a", AgentURL: "https://agent.example.com/mcp"})
	require.NoError(t, err)
	assert.Equal(t, StateNoCredentials, c.State())
	assert.Equal(t, "a", c.AgentID())
}

func TestCoordinator_Authorize(t *testing.T) {
	as := newAuthServer(t)
	c, store, rec := newTestCoordinator(t, as, approve)

	token, err := c.EnsureToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, StateAuthorized, c.State())

	creds, err := store.Load("agent-1")
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "access-1", creds.Token.AccessToken)
	assert.Equal(t, "refresh-1", creds.Token.RefreshToken)
	assert.Equal(t, "registered-client", creds.Client.ClientID)
	assert.Equal(t, as.URL, creds.Issuer)
	assert.Nil(t, creds.Verifier, "verifier must be deleted after the exchange")

	assert.Equal(t, 1, as.registrations)
	assert.Equal(t, 1, as.exchanges)
	assert.Equal(t, []events.EventReason{events.ReasonAuthorizationStarted, events.ReasonAuthorizationCompleted}, rec.Reasons())

	// A stored valid token is returned without another flow.
	token, err = c.EnsureToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, 1, as.exchanges)
}

func TestCoordinator_VerifierStoredBeforeBrowserOpens(t *testing.T) {
	as := newAuthServer(t)
	store := NewMemoryStore()

	var seen *PendingVerifier
	launcher := LauncherFunc(func(authURL string) error {
		creds, err := store.Load("agent-1")
		require.NoError(t, err)
		require.NotNil(t, creds)
		seen = creds.Verifier
		return (&browser{t: t, as: as, query: approve}).OpenURL(authURL)
	})

	c, err := New(Config{AgentID: "agent-1", Issuer: as.URL, Timeout: 5 * time.Second},
		WithStore(store),
		WithClient(pkgoauth.NewClient(pkgoauth.WithHTTPClient(as.Client()))),
		WithLauncher(launcher),
	)
	require.NoError(t, err)

	_, err = c.Authorize(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, seen.CodeVerifier, as.lastVerifier)
}

// tokenRejectingStore fails to save any record that carries a token.
type tokenRejectingStore struct {
	*MemoryStore
}

func (s tokenRejectingStore) Save(creds *Credentials) error {
	if creds.Token != nil {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(creds)
}

func TestCoordinator_VerifierDroppedWhenTokenCannotBeStored(t *testing.T) {
	as := newAuthServer(t)
	store := tokenRejectingStore{MemoryStore: NewMemoryStore()}

	c, err := New(Config{AgentID: "agent-1", Issuer: as.URL, Timeout: 5 * time.Second},
		WithStore(store),
		WithClient(pkgoauth.NewClient(pkgoauth.WithHTTPClient(as.Client()))),
		WithLauncher(&browser{t: t, as: as, query: approve}),
	)
	require.NoError(t, err)

	token, err := c.Authorize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, 1, as.exchanges)

	creds, err := store.Load("agent-1")
	require.NoError(t, err)
	if creds != nil {
		assert.Nil(t, creds.Verifier)
	}
}

func TestCoordinator_UserCancelled(t *testing.T) {
	as := newAuthServer(t)
	opened := make(chan string, 1)
	store := NewMemoryStore()
	rec := &events.Recorder{}

	c, err := New(Config{AgentID: "agent-1", Issuer: as.URL, Timeout: 5 * time.Second},
		WithStore(store),
		WithEvents(events.NewEmitter(rec)),
		WithClient(pkgoauth.NewClient(pkgoauth.WithHTTPClient(as.Client()))),
		WithLauncher(&browser{t: t, as: as, opened: opened, query: func(string) url.Values {
			return url.Values{"error": {"access_denied"}}
		}}),
	)
	require.NoError(t, err)

	_, err = c.Authorize(context.Background(), nil)
	require.Error(t, err)

	var cancelled *UserCancelledError
	require.True(t, errors.As(err, &cancelled))
	assert.Equal(t, "agent-1", cancelled.AgentID)
	assert.True(t, IsUserCancelled(err))
	assert.Equal(t, StateNoCredentials, c.State())
	assert.Contains(t, rec.Reasons(), events.ReasonAuthorizationCancelled)
	assert.NotContains(t, rec.Reasons(), events.ReasonAuthorizationFailed)

	// A late code on the same callback path changes nothing.
	callbackURL := <-opened
	u, _ := url.Parse(callbackURL)
	u.RawQuery = "code=abc123"
	if resp, err := http.Get(u.String()); err == nil {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Contains(t, string(body), "already_processed")
	}

	creds, err := store.Load("agent-1")
	require.NoError(t, err)
	if creds != nil {
		assert.Nil(t, creds.Token)
		assert.Nil(t, creds.Verifier)
	}
	assert.Equal(t, 0, as.exchanges)
}

func TestCoordinator_CallbackFailures(t *testing.T) {
	tests := []struct {
		name  string
		query func(state string) url.Values
		check func(t *testing.T, err error)
	}{
		{
			name: "authorization error carries description",
			query: func(string) url.Values {
				return url.Values{"error": {"server_error"}, "error_description": {"upstream down"}}
			},
			check: func(t *testing.T, err error) {
				var authErr *AuthorizationError
				require.True(t, errors.As(err, &authErr))
				assert.Equal(t, "server_error", authErr.Code)
				assert.Equal(t, "upstream down", authErr.Description)
				assert.False(t, IsUserCancelled(err))
			},
		},
		{
			name:  "neither code nor error",
			query: func(string) url.Values { return url.Values{} },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrProtocolViolation)
			},
		},
		{
			name: "state mismatch",
			query: func(string) url.Values {
				return url.Values{"code": {"abc123"}, "state": {"forged"}}
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrStateMismatch)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := newAuthServer(t)
			c, store, rec := newTestCoordinator(t, as, tt.query)

			_, err := c.Authorize(context.Background(), nil)
			require.Error(t, err)
			tt.check(t, err)

			assert.Equal(t, StateInvalid, c.State())
			assert.Contains(t, rec.Reasons(), events.ReasonAuthorizationFailed)
			assert.Equal(t, 0, as.exchanges)

			creds, err := store.Load("agent-1")
			require.NoError(t, err)
			if creds != nil {
				assert.Nil(t, creds.Verifier)
			}
		})
	}
}

func TestCoordinator_Timeout(t *testing.T) {
	as := newAuthServer(t)
	c, err := New(Config{AgentID: "agent-1", Issuer: as.URL, Timeout: 200 * time.Millisecond},
		WithClient(pkgoauth.NewClient(pkgoauth.WithHTTPClient(as.Client()))),
		WithLauncher(LauncherFunc(func(string) error { return nil })),
	)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Authorize(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, completion.IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, StateInvalid, c.State())
}

func TestCoordinator_Token(t *testing.T) {
	t.Run("nothing stored", func(t *testing.T) {
		as := newAuthServer(t)
		c, _, _ := newTestCoordinator(t, as, approve)

		_, err := c.Token(context.Background())
		assert.ErrorIs(t, err, ErrAuthRequired)
		assert.Equal(t, StateNoCredentials, c.State())
	})

	t.Run("refreshes expired token", func(t *testing.T) {
		as := newAuthServer(t)
		c, store, _ := newTestCoordinator(t, as, func(string) url.Values {
			t.Error("browser must not be opened when refresh succeeds")
			return url.Values{}
		})
		require.NoError(t, store.Save(&Credentials{
			AgentID: "agent-1",
			Issuer:  as.URL,
			Client:  &pkgoauth.ClientInformation{ClientID: "registered-client"},
			Token: &StoredToken{
				AccessToken:  "stale",
				RefreshToken: "refresh-1",
				TokenType:    "Bearer",
				Expiry:       time.Now().Add(-time.Minute),
			},
		}))

		token, err := c.EnsureToken(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "access-2", token.AccessToken)
		assert.Equal(t, 1, as.refreshes)
		assert.Equal(t, StateAuthorized, c.State())

		creds, err := store.Load("agent-1")
		require.NoError(t, err)
		assert.Equal(t, "access-2", creds.Token.AccessToken)
		assert.Equal(t, "refresh-1", creds.Token.RefreshToken, "refresh token is kept when the server does not rotate it")
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		as := newAuthServer(t)
		c, store, _ := newTestCoordinator(t, as, approve)
		require.NoError(t, store.Save(&Credentials{
			AgentID: "agent-1",
			Token:   &StoredToken{AccessToken: "stale", Expiry: time.Now().Add(30 * time.Second)},
		}))

		_, err := c.Token(context.Background())
		assert.ErrorIs(t, err, ErrAuthRequired)
		assert.Equal(t, StateExpired, c.State())
	})

	t.Run("rejected refresh", func(t *testing.T) {
		as := newAuthServer(t)
		c, store, _ := newTestCoordinator(t, as, approve)
		require.NoError(t, store.Save(&Credentials{
			AgentID: "agent-1",
			Issuer:  as.URL,
			Client:  &pkgoauth.ClientInformation{ClientID: "registered-client"},
			Token:   &StoredToken{AccessToken: "stale", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Minute)},
		}))

		_, err := c.Token(context.Background())
		assert.ErrorIs(t, err, ErrAuthRequired)
		assert.Equal(t, StateInvalid, c.State())
	})
}

func TestCoordinator_Invalidate(t *testing.T) {
	seed := func(store *MemoryStore) {
		_ = store.Save(&Credentials{
			AgentID:  "agent-1",
			Issuer:   "https://auth.example.com",
			Token:    &StoredToken{AccessToken: "a", Expiry: time.Now().Add(time.Hour)},
			Client:   &pkgoauth.ClientInformation{ClientID: "c"},
			Verifier: &PendingVerifier{CodeVerifier: "v", State: "s"},
		})
	}

	tests := []struct {
		scope        Scope
		wantToken    bool
		wantClient   bool
		wantVerifier bool
	}{
		{scope: ScopeTokens, wantClient: true, wantVerifier: true},
		{scope: ScopeClient, wantToken: true, wantVerifier: true},
		{scope: ScopeVerifier, wantToken: true, wantClient: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			as := newAuthServer(t)
			c, store, rec := newTestCoordinator(t, as, approve)
			seed(store)

			require.NoError(t, c.Invalidate(tt.scope))

			creds, err := store.Load("agent-1")
			require.NoError(t, err)
			require.NotNil(t, creds)
			assert.Equal(t, tt.wantToken, creds.Token != nil)
			assert.Equal(t, tt.wantClient, creds.Client != nil)
			assert.Equal(t, tt.wantVerifier, creds.Verifier != nil)
			assert.Equal(t, []events.EventReason{events.ReasonCredentialsInvalidated}, rec.Reasons())
		})
	}

	t.Run("all", func(t *testing.T) {
		as := newAuthServer(t)
		c, store, _ := newTestCoordinator(t, as, approve)
		seed(store)

		require.NoError(t, c.Invalidate(ScopeAll))
		creds, err := store.Load("agent-1")
		require.NoError(t, err)
		assert.Nil(t, creds)
		assert.Equal(t, StateNoCredentials, c.State())
	})

	t.Run("unknown scope", func(t *testing.T) {
		as := newAuthServer(t)
		c, _, _ := newTestCoordinator(t, as, approve)
		assert.Error(t, c.Invalidate(Scope("everything")))
	})
}

func TestCoordinator_Status(t *testing.T) {
	as := newAuthServer(t)
	c, store, _ := newTestCoordinator(t, as, approve)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, StateNoCredentials, status.State)

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, store.Save(&Credentials{
		AgentID: "agent-1",
		Issuer:  as.URL,
		Client:  &pkgoauth.ClientInformation{ClientID: "registered-client"},
		Token:   &StoredToken{AccessToken: "a", RefreshToken: "r", Expiry: expiry},
	}))

	status, err = c.Status()
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, status.State)
	assert.Equal(t, "registered-client", status.ClientID)
	assert.True(t, status.HasRefreshToken)
	assert.False(t, status.PendingVerifier)
	assert.WithinDuration(t, expiry, status.Expiry, time.Second)
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{
		"tokens":   ScopeTokens,
		"CLIENT":   ScopeClient,
		"verifier": ScopeVerifier,
		"all":      ScopeAll,
		"":         ScopeAll,
	} {
		got, err := ParseScope(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseScope("cookies")
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending-authorization", StatePendingAuthorization.String())
	assert.Equal(t, "exchanging", StateExchanging.String())
	assert.Equal(t, "unknown", State(99).String())
}
