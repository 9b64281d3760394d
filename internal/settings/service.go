package settings

import (
	"fmt"
	"sync"
)

// Service serves the current settings and persists updates through a Store.
type Service struct {
	mu      sync.RWMutex
	store   Store
	current Settings
}

// NewService loads settings from store, falling back to Defaults when
// nothing has been saved. Saved settings that fail validation are an error.
func NewService(store Store) (*Service, error) {
	current, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		current = Defaults()
	} else if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("stored settings: %w", err)
	}
	return &Service{store: store, current: current}, nil
}

// Current returns a copy of the active settings.
func (s *Service) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates, persists and activates next. On error the active
// settings are unchanged.
func (s *Service) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(next); err != nil {
		return err
	}
	s.current = next
	return nil
}
