package oauth

import (
	"sync"
)

// Store persists credentials by agent ID. Load returns nil and no error when
// nothing is stored.
type Store interface {
	Load(agentID string) (*Credentials, error)
	Save(creds *Credentials) error
	Delete(agentID string) error
}

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credentials
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credentials)}
}

func (s *MemoryStore) Load(agentID string) (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds[agentID].clone(), nil
}

func (s *MemoryStore) Save(creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[creds.AgentID] = creds.clone()
	return nil
}

func (s *MemoryStore) Delete(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, agentID)
	return nil
}

// clone copies c so stored values cannot be changed through a caller's
// pointer.
func (c *Credentials) clone() *Credentials {
	if c == nil {
		return nil
	}
	out := *c
	if c.Token != nil {
		token := *c.Token
		out.Token = &token
	}
	if c.Client != nil {
		client := *c.Client
		client.RedirectURIs = append([]string(nil), c.Client.RedirectURIs...)
		out.Client = &client
	}
	if c.Verifier != nil {
		verifier := *c.Verifier
		out.Verifier = &verifier
	}
	return &out
}
