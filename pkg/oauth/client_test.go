package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func metadataServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/oauth-authorization-server":
			if hits != nil {
				atomic.AddInt32(hits, 1)
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Metadata{
				Issuer:                server.URL,
				AuthorizationEndpoint: server.URL + "/authorize",
				TokenEndpoint:         server.URL + "/token",
				RegistrationEndpoint:  server.URL + "/register",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewClient()
		if c.httpClient == nil || c.logger == nil || c.metadataCache == nil {
			t.Fatal("expected defaults to be initialized")
		}
		if c.metadataTTL != DefaultMetadataCacheTTL {
			t.Errorf("expected TTL %v, got %v", DefaultMetadataCacheTTL, c.metadataTTL)
		}
	})

	t.Run("options", func(t *testing.T) {
		hc := &http.Client{Timeout: time.Second}
		c := NewClient(WithHTTPClient(hc), WithMetadataCacheTTL(time.Minute))
		if c.HTTPClient() != hc {
			t.Error("expected custom HTTP client")
		}
		if c.metadataTTL != time.Minute {
			t.Errorf("expected TTL 1m, got %v", c.metadataTTL)
		}
	})
}

func TestDiscoverMetadata(t *testing.T) {
	t.Run("RFC 8414 document", func(t *testing.T) {
		server := metadataServer(t, nil)
		c := NewClient(WithHTTPClient(server.Client()))

		md, err := c.DiscoverMetadata(context.Background(), server.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if md.TokenEndpoint != server.URL+"/token" {
			t.Errorf("unexpected token endpoint %q", md.TokenEndpoint)
		}
		if !md.SupportsRegistration() || !md.SupportsPKCE() {
			t.Error("expected registration and PKCE support")
		}
	})

	t.Run("falls back to OpenID configuration", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/.well-known/openid-configuration" {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(Metadata{
				Issuer:                "https://oidc.example.com",
				AuthorizationEndpoint: "https://oidc.example.com/auth",
				TokenEndpoint:         "https://oidc.example.com/token",
			})
		}))
		defer server.Close()

		md, err := NewClient(WithHTTPClient(server.Client())).DiscoverMetadata(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if md.AuthorizationEndpoint != "https://oidc.example.com/auth" {
			t.Errorf("unexpected authorization endpoint %q", md.AuthorizationEndpoint)
		}
	})

	t.Run("fails when nothing is published", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		_, err := NewClient(WithHTTPClient(server.Client())).DiscoverMetadata(context.Background(), server.URL)
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("caches and deduplicates concurrent lookups", func(t *testing.T) {
		var hits int32
		server := metadataServer(t, &hits)
		c := NewClient(WithHTTPClient(server.Client()))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.DiscoverMetadata(context.Background(), server.URL); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if _, err := c.DiscoverMetadata(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt32(&hits); got != 1 {
			t.Errorf("expected 1 fetch, got %d", got)
		}

		c.ClearMetadataCache()
		if _, err := c.DiscoverMetadata(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt32(&hits); got != 2 {
			t.Errorf("expected 2 fetches after clearing the cache, got %d", got)
		}
	})
}

func TestWellKnownURLs(t *testing.T) {
	got := wellKnownURLs("https://auth.example.com/tenant1")
	if got[0] != "https://auth.example.com/.well-known/oauth-authorization-server/tenant1" {
		t.Errorf("unexpected first URL %q", got[0])
	}
	if len(wellKnownURLs("https://auth.example.com")) != 2 {
		t.Error("expected two URLs for an issuer without a path")
	}
}

func TestResolveIssuer(t *testing.T) {
	auth := metadataServer(t, nil)

	resource := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/oauth-protected-resource" {
			_ = json.NewEncoder(w).Encode(ProtectedResourceMetadata{
				Resource:             "agent",
				AuthorizationServers: []string{auth.URL + "/"},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer resource.Close()

	c := NewClient()

	if got := c.ResolveIssuer(context.Background(), resource.URL+"/mcp", &AuthChallenge{Scheme: "Bearer", Realm: "https://realm.example.com"}); got != "https://realm.example.com" {
		t.Errorf("expected realm issuer, got %q", got)
	}
	if got := c.ResolveIssuer(context.Background(), resource.URL+"/mcp", nil); got != auth.URL {
		t.Errorf("expected issuer from resource metadata, got %q", got)
	}

	bare := httptest.NewServer(http.NotFoundHandler())
	defer bare.Close()
	if got := c.ResolveIssuer(context.Background(), bare.URL+"/a2a", nil); got != bare.URL {
		t.Errorf("expected origin fallback, got %q", got)
	}
}

func TestRegisterClient(t *testing.T) {
	var received ClientMetadata
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/register" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		if len(received.RedirectURIs) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_redirect_uri"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ClientInformation{ClientID: "client-123", RedirectURIs: received.RedirectURIs})
	}))
	defer server.Close()

	c := NewClient(WithHTTPClient(server.Client()))

	info, err := c.RegisterClient(context.Background(), server.URL+"/register", ClientMetadata{
		ClientName:              "agenthook",
		RedirectURIs:            []string{"http://localhost:8766/callback"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethod: "none",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ClientID != "client-123" {
		t.Errorf("unexpected client id %q", info.ClientID)
	}
	if received.ClientName != "agenthook" {
		t.Errorf("server saw client name %q", received.ClientName)
	}
	if info.SecretExpired() {
		t.Error("secret without expiry must not be expired")
	}

	if _, err := c.RegisterClient(context.Background(), server.URL+"/register", ClientMetadata{}); err == nil {
		t.Error("expected rejected registration to fail")
	}
	if _, err := c.RegisterClient(context.Background(), "", ClientMetadata{}); !errors.Is(err, ErrRegistrationUnsupported) {
		t.Errorf("expected ErrRegistrationUnsupported, got %v", err)
	}
}
