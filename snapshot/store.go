package snapshot

import "sync"

// Store keeps the most recently computed snapshot, the baseline the next
// tick is compared against. It is purely in-memory.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	set     bool
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Latest returns the held snapshot and whether one has been stored yet
func (s *Store) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone(), s.set
}

// Swap installs next and returns the previous snapshot.
// changed is true when next differs from the previous one, or when the store was empty.
func (s *Store) Swap(next Snapshot) (prev Snapshot, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, wasSet := s.current, s.set
	s.current = next.Clone()
	s.set = true

	return prev, !wasSet || !prev.Equal(next)
}
