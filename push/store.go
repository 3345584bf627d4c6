package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jmcleod/fxaccount/storage"
)

// Store maps profile names to push registrations. Registrations handed out
// are copies; changes take effect through PutRegistration and reach the
// backend on Checkpoint.
type Store struct {
	backend storage.Backend
	logger  *slog.Logger

	mu            sync.RWMutex
	registrations map[string]*Registration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// OpenStore loads the store from backend. A missing document yields an
// empty store; a corrupt one is logged and replaced by an empty store.
func OpenStore(backend storage.Backend, opts ...StoreOption) (*Store, error) {
	s := &Store{
		backend:       backend,
		logger:        slog.Default(),
		registrations: make(map[string]*Registration),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := backend.Load()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s, nil
	case errors.Is(err, storage.ErrNotSealed):
		s.logger.Warn("push store unreadable; starting empty", slog.String("error", err.Error()))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("loading push store: %w", err)
	}

	var loaded map[string]*Registration
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("push store corrupt; starting empty", slog.String("error", err.Error()))
		return s, nil
	}
	for profile, r := range loaded {
		if r == nil {
			continue
		}
		if r.Subscriptions == nil {
			r.Subscriptions = make(map[string]*Subscription)
		}
		s.registrations[profile] = r
	}
	return s, nil
}

// Registration returns a copy of the registration for profile, or nil.
func (s *Store) Registration(profile string) *Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registrations[profile].Clone()
}

// PutRegistration inserts or replaces the registration for profile without
// persisting it.
func (s *Store) PutRegistration(profile string, r *Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations[profile] = r.Clone()
}

// RemoveRegistration deletes profile and reports whether it existed.
func (s *Store) RemoveRegistration(profile string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registrations[profile]
	delete(s.registrations, profile)
	return ok
}

// RegistrationForSubscription finds the registration owning chid. It
// returns "" and nil when no registration has it.
func (s *Store) RegistrationForSubscription(chid string) (string, *Registration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for profile, r := range s.registrations {
		if r.Subscription(chid) != nil {
			return profile, r.Clone()
		}
	}
	return "", nil
}

// Profiles returns the configured profile names in sorted order.
func (s *Store) Profiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.registrations))
	for name := range s.registrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checkpoint writes every registration to the backend.
func (s *Store) Checkpoint() error {
	s.mu.RLock()
	data, err := json.Marshal(s.registrations)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding push store: %w", err)
	}
	if err := s.backend.Save(data); err != nil {
		return fmt.Errorf("saving push store: %w", err)
	}
	return nil
}
