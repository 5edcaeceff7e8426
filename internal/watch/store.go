package watch

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store holds the current watch profile behind a lock, so the poll loop
// reads a consistent profile while the reload goroutine swaps it.
type Store struct {
	mu      sync.RWMutex
	profile Profile
}

func NewStore() *Store {
	return &Store{}
}

// Current returns the profile as of now.
func (s *Store) Current() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.profile
}

// Update swaps in a new profile. Logs at info level when the content
// changed (by digest), debug when it did not.
func (s *Store) Update(profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile.Digest() != profile.Digest() {
		log.Info().
			Int("clubs", len(profile.Clubs)).
			Int("max_per_poll", profile.MaxPerPoll).
			Msg("watch profile: updated")
	} else {
		log.Debug().Msg("watch profile: no changes detected")
	}

	s.profile = profile
}
