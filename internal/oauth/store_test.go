package oauth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	pkgoauth "agenthook/pkg/oauth"
)

func testCredentials() *Credentials {
	return &Credentials{
		AgentID: "agent-1",
		Issuer:  "https://auth.example.com",
		Token: &StoredToken{
			AccessToken:  "test-access-token",
			RefreshToken: "test-refresh-token",
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour),
		},
		Client: &pkgoauth.ClientInformation{ClientID: "client-1", RedirectURIs: []string{"http://localhost:8765/callback"}},
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	creds, err := store.Load("agent-1")
	if err != nil || creds != nil {
		t.Fatalf("expected nothing stored, got %v, %v", creds, err)
	}

	original := testCredentials()
	if err := store.Save(original); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	// Mutating the caller's copy must not change what is stored.
	original.Token.AccessToken = "mutated"
	original.Client.RedirectURIs[0] = "mutated"

	loaded, err := store.Load("agent-1")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if loaded.Token.AccessToken != "test-access-token" {
		t.Errorf("Expected stored token to be isolated, got %q", loaded.Token.AccessToken)
	}
	if loaded.Client.RedirectURIs[0] != "http://localhost:8765/callback" {
		t.Errorf("Expected stored redirect URIs to be isolated, got %q", loaded.Client.RedirectURIs[0])
	}

	if err := store.Delete("agent-1"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if creds, _ := store.Load("agent-1"); creds != nil {
		t.Error("Expected credentials to be deleted")
	}
}

func TestFileStore_SaveLoadDelete(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore(FileStoreConfig{Dir: tmpDir})
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	defer store.Close()

	if err := store.Save(testCredentials()); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	filePath := filepath.Join(tmpDir, credentialKey("agent-1")+".json")
	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatalf("Expected credential file to exist: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected file permissions 0600, got %o", perm)
	}

	// A fresh store reads from disk.
	reopened, err := NewFileStore(FileStoreConfig{Dir: tmpDir})
	if err != nil {
		t.Fatalf("Failed to reopen file store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load("agent-1")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if loaded == nil || loaded.Token.RefreshToken != "test-refresh-token" || loaded.Client.ClientID != "client-1" {
		t.Fatalf("Unexpected credentials loaded: %+v", loaded)
	}

	if err := reopened.Delete("agent-1"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("Expected credential file to be removed")
	}
	if err := reopened.Delete("agent-1"); err != nil {
		t.Errorf("Deleting twice should not fail: %v", err)
	}
}

func TestFileStore_WatchPicksUpExternalChanges(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore(FileStoreConfig{Dir: tmpDir, Watch: true})
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	defer store.Close()

	if err := store.Save(testCredentials()); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if _, err := store.Load("agent-1"); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	// Another process rewrites the file.
	changed := testCredentials()
	changed.Token.AccessToken = "rotated"
	data, _ := json.Marshal(changed)
	if err := os.WriteFile(filepath.Join(tmpDir, credentialKey("agent-1")+".json"), data, 0600); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		creds, err := store.Load("agent-1")
		if err == nil && creds != nil && creds.Token.AccessToken == "rotated" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Expected the store to pick up the rewritten file")
}

func TestStoredToken_Valid(t *testing.T) {
	tests := []struct {
		name  string
		token *StoredToken
		want  bool
	}{
		{"nil", nil, false},
		{"no access token", &StoredToken{}, false},
		{"no expiry", &StoredToken{AccessToken: "a"}, true},
		{"far expiry", &StoredToken{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}, true},
		{"within buffer", &StoredToken{AccessToken: "a", Expiry: time.Now().Add(30 * time.Second)}, false},
		{"expired", &StoredToken{AccessToken: "a", Expiry: time.Now().Add(-time.Minute)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoredToken_RoundTripsIDToken(t *testing.T) {
	token := (&oauth2.Token{AccessToken: "a", TokenType: "Bearer"}).WithExtra(map[string]interface{}{"id_token": "id-1"})

	stored := NewStoredToken(token)
	if stored.IDToken != "id-1" {
		t.Fatalf("Expected ID token to be captured, got %q", stored.IDToken)
	}
	if got := stored.ToOAuth2Token().Extra("id_token"); got != "id-1" {
		t.Errorf("Expected ID token in extra data, got %v", got)
	}
}
