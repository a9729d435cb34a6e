package logging

import "sync"

// OnceSet remembers which keys have already been reported so a warning is
// emitted only once per key. Each component that needs one owns its own
// instance; there is no package-level set.
type OnceSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewOnceSet creates an empty set.
func NewOnceSet() *OnceSet {
	return &OnceSet{seen: make(map[string]struct{})}
}

// First reports whether key is seen for the first time, and marks it seen.
// A nil set reports true every time.
func (s *OnceSet) First(key string) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// WarnOnce logs a warning for key only the first time it is seen.
func (s *OnceSet) WarnOnce(key, subsystem, messageFmt string, args ...interface{}) {
	if s.First(key) {
		Warn(subsystem, messageFmt, args...)
	}
}

// Reset forgets every key.
func (s *OnceSet) Reset() {
	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.mu.Unlock()
}
