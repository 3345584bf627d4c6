// Package account persists the login state of each profile in a single
// JSON document.
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jmcleod/fxaccount/login"
	"github.com/jmcleod/fxaccount/storage"
)

// Store maps profile names to login states. Mutations stay in memory until
// Checkpoint.
type Store struct {
	backend storage.Backend
	logger  *slog.Logger

	mu     sync.RWMutex
	states map[string]login.State
}

var _ login.Persister = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open loads the store from backend. A missing document yields an empty
// store. A corrupt document, or a corrupt entry within it, is logged and
// dropped.
func Open(backend storage.Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		states:  make(map[string]login.State),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := backend.Load()
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotSealed) {
		return nil, fmt.Errorf("loading account store: %w", err)
	}
	if err != nil {
		s.logger.Warn("account store unreadable; starting empty", slog.String("error", err.Error()))
		return s, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("account store corrupt; starting empty", slog.String("error", err.Error()))
		return s, nil
	}
	for profile, rec := range raw {
		state, err := login.UnmarshalRecord(rec)
		if err != nil {
			s.logger.Warn("dropping unreadable account state",
				slog.String("profile", profile),
				slog.String("error", err.Error()))
			continue
		}
		s.states[profile] = state
	}
	return s, nil
}

// State returns the state stored for profile, or nil.
func (s *Store) State(profile string) login.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[profile]
}

// PutState inserts or replaces the state of profile without persisting it.
func (s *Store) PutState(profile string, state login.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[profile] = state
}

// DeleteState removes profile. It reports whether the profile existed.
func (s *Store) DeleteState(profile string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.states[profile]
	delete(s.states, profile)
	return ok
}

// Profiles returns the stored profile names in sorted order.
func (s *Store) Profiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.states))
	for name := range s.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checkpoint writes every state to the backend.
func (s *Store) Checkpoint() error {
	s.mu.RLock()
	doc := make(map[string]json.RawMessage, len(s.states))
	for profile, state := range s.states {
		rec, err := login.MarshalRecord(state)
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("encoding profile %q: %w", profile, err)
		}
		doc[profile] = rec
	}
	s.mu.RUnlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding account store: %w", err)
	}
	if err := s.backend.Save(data); err != nil {
		return fmt.Errorf("saving account store: %w", err)
	}
	return nil
}

// PersistState stores state for profile and checkpoints.
func (s *Store) PersistState(profile string, state login.State) error {
	s.PutState(profile, state)
	return s.Checkpoint()
}
