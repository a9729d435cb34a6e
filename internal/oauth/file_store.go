package oauth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultStorageDir is the credential directory relative to the home directory.
const DefaultStorageDir = ".config/agenthook/credentials"

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Dir defaults to ~/.config/agenthook/credentials.
	Dir string

	// Watch drops cached entries when their files change on disk.
	Watch bool
}

// FileStore persists credentials as one JSON file per agent.
//
// SECURITY:
//   - Files are created with 0600 permissions and the directory with 0700
//   - File names are derived from a hash of the agent ID
//   - Credential values are never logged
type FileStore struct {
	mu    sync.RWMutex
	dir   string
	cache map[string]*Credentials

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	once    sync.Once
}

// NewFileStore creates the storage directory and, if requested, starts
// watching it.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
	}

	s := &FileStore{
		dir:    dir,
		cache:  make(map[string]*Credentials),
		stopCh: make(chan struct{}),
	}

	if cfg.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("Credential watcher unavailable, cache will not follow external changes", "error", err)
			return s, nil
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			slog.Warn("Failed to watch credential directory", "dir", dir, "error", err)
			return s, nil
		}
		s.watcher = watcher
		go s.processEvents(watcher.Events, watcher.Errors)
	}

	return s, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Load(agentID string) (*Credentials, error) {
	key := credentialKey(agentID)

	s.mu.RLock()
	if creds, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return creds.clone(), nil
	}
	s.mu.RUnlock()

	creds, err := s.readFile(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = creds
	s.mu.Unlock()
	return creds.clone(), nil
}

func (s *FileStore) Save(creds *Credentials) error {
	key := credentialKey(creds.AgentID)

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(key), data, 0600); err != nil {
		slog.Warn("SECURITY_AUDIT: credential storage failed",
			"event", "credentials_store_failed",
			"agent_id", creds.AgentID,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	s.cache[key] = creds.clone()

	slog.Info("SECURITY_AUDIT: credentials stored",
		"event", "credentials_stored",
		"agent_id", creds.AgentID,
		"has_token", creds.Token != nil,
		"has_refresh_token", creds.Token != nil && creds.Token.RefreshToken != "",
		"has_client", creds.Client != nil,
		"has_verifier", creds.Verifier != nil,
	)
	return nil
}

func (s *FileStore) Delete(agentID string) error {
	key := credentialKey(agentID)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, key)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		slog.Warn("SECURITY_AUDIT: credential deletion failed",
			"event", "credentials_delete_failed",
			"agent_id", agentID,
			"error", err.Error(),
		)
		return err
	}

	slog.Info("SECURITY_AUDIT: credentials deleted",
		"event", "credentials_deleted",
		"agent_id", agentID,
	)
	return nil
}

// Close stops watching the directory.
func (s *FileStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopCh)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}

// processEvents receives the watcher channels as parameters so Close can
// tear the watcher down without racing this loop.
func (s *FileStore) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-s.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			slog.Warn("Credential watcher error", "error", err)
		}
	}
}

func (s *FileStore) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if filepath.Ext(name) != ".json" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	s.mu.Lock()
	delete(s.cache, strings.TrimSuffix(name, ".json"))
	s.mu.Unlock()
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) readFile(key string) (*Credentials, error) {
	// #nosec G304 -- the path is built from a hashed key, not user input
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return &creds, nil
}

// credentialKey derives a filesystem-safe name from an agent ID.
func credentialKey(agentID string) string {
	hash := sha256.Sum256([]byte(agentID))
	return hex.EncodeToString(hash[:16])
}
