package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"agenthook/internal/agent"
	"agenthook/internal/config"
	"agenthook/internal/events"
	"agenthook/internal/oauth"
)

// loadConfig reads and validates the configuration from --config-path.
func loadConfig() (config.Config, error) {
	dir := configPath
	if dir == "" {
		var err error
		dir, err = config.GetDefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// lookupAgent finds the agent or lists the configured ones.
func lookupAgent(cfg config.Config, id string) (config.AgentConfig, error) {
	a, ok := cfg.Agent(id)
	if ok {
		return a, nil
	}

	ids := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return config.AgentConfig{}, fmt.Errorf("agent %q not found: no agents configured", id)
	}
	return config.AgentConfig{}, fmt.Errorf("agent %q not found (available: %s)", id, strings.Join(ids, ", "))
}

// session holds the per-command resources built from the configuration.
type session struct {
	cfg     config.Config
	emitter *events.Emitter
	store   oauth.Store
	closers []io.Closer
}

func newSession(cfg config.Config) (*session, error) {
	s := &session{
		cfg:     cfg,
		emitter: events.NewEmitter(events.LogSink{}),
	}

	if cfg.OAuth.FileMode {
		fs, err := oauth.NewFileStore(oauth.FileStoreConfig{Dir: cfg.OAuth.StorageDir})
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		s.store = fs
		s.closers = append(s.closers, fs)
	} else {
		s.store = oauth.NewMemoryStore()
	}
	return s, nil
}

// coordinator builds the OAuth coordinator for an agent.
func (s *session) coordinator(a config.AgentConfig) (*oauth.Coordinator, error) {
	o := s.cfg.OAuth
	return oauth.New(oauth.Config{
		AgentID:      a.ID,
		AgentURL:     a.URI,
		Issuer:       a.Issuer,
		ClientID:     a.ClientID,
		ClientName:   o.ClientName,
		Scopes:       a.Scopes,
		CallbackHost: o.CallbackHost,
		CallbackPort: o.CallbackPort,
		CallbackPath: o.CallbackPath,
		Timeout:      o.Timeout,
	},
		oauth.WithStore(s.store),
		oauth.WithLauncher(oauth.NewDefaultLauncher()),
		oauth.WithEvents(s.emitter),
	)
}

// agent builds the agent with its transport, plus a coordinator when the
// agent uses OAuth.
func (s *session) agent(id string) (*agent.Agent, error) {
	a, err := lookupAgent(s.cfg, id)
	if err != nil {
		return nil, err
	}

	var auth agent.Authorizer
	if a.OAuth {
		c, err := s.coordinator(a)
		if err != nil {
			return nil, err
		}
		auth = c
	}

	ag, err := agent.New(a, auth, nil)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, ag)
	return ag, nil
}

func (s *session) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
