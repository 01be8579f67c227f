// Package progress persists per-question rewards and derives overall hunt
// completion from them.
package progress

import "sync"

// Store persists solved-question fragments and the final claim flag. A
// fragment is recorded only through a verified correct answer; recording is
// idempotent and never overwrites an existing fragment.
type Store interface {
	// RecordFragment stores the fragment for a question. Calling it again is
	// a no-op, the first recorded value wins.
	RecordFragment(questionID, fragment string) error

	// Fragment returns the recorded fragment, if any.
	Fragment(questionID string) (string, bool, error)

	// Fragments returns all recorded fragments keyed by question id.
	Fragments() (map[string]string, error)

	// MarkClaimed persists the reward-claimed flag. Idempotent.
	MarkClaimed() error

	// Claimed reports whether the reward has been claimed.
	Claimed() (bool, error)

	// Reset removes all recorded state. Used by the cache-clear operation.
	Reset() error
}

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu        sync.Mutex
	fragments map[string]string
	claimed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fragments: make(map[string]string)}
}

func (s *MemoryStore) RecordFragment(questionID, fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fragments[questionID]; exists {
		return nil
	}
	s.fragments[questionID] = fragment
	return nil
}

func (s *MemoryStore) Fragment(questionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fragment, ok := s.fragments[questionID]
	return fragment, ok, nil
}

func (s *MemoryStore) Fragments() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.fragments))
	for k, v := range s.fragments {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) MarkClaimed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimed = true
	return nil
}

func (s *MemoryStore) Claimed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimed, nil
}

func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments = make(map[string]string)
	s.claimed = false
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
