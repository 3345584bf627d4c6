// Package push keeps the push registration of each profile and the channel
// subscriptions made under it, and coordinates them with a push server and
// a device token provider.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval is how long a uaid is used before it is
// re-registered with the push server.
const DefaultRefreshInterval = 7 * 24 * time.Hour

// Manager orchestrates configure, register, subscribe and unsubscribe for
// named profiles. Every mutation is checkpointed.
type Manager struct {
	store           *Store
	clients         ClientFactory
	tokens          TokenClient
	senderIDs       []string
	refreshInterval time.Duration
	logger          *slog.Logger

	// mu serializes read-modify-write cycles on the store.
	mu sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRefreshInterval sets how old a uaid may get before RegisterUserAgent
// renews it. Default: DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager returns a Manager over store.
func NewManager(store *Store, clients ClientFactory, tokens TokenClient, senderIDs []string, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:           store,
		clients:         clients,
		tokens:          tokens,
		senderIDs:       senderIDs,
		refreshInterval: DefaultRefreshInterval,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) put(profile string, r *Registration) error {
	m.store.PutRegistration(profile, r)
	return m.store.Checkpoint()
}

func (m *Manager) client(r *Registration) (Client, error) {
	c, err := m.clients(r.AutopushEndpoint, r.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating push client for %s: %w", r.AutopushEndpoint, err)
	}
	return c, nil
}

// unregister tells the push server to forget r's uaid. Failures are logged
// only; the local registration is replaced either way.
func (m *Manager) unregister(ctx context.Context, profile string, r *Registration) {
	if !r.Registered() {
		return
	}
	c, err := m.client(r)
	if err == nil {
		err = c.UnregisterUserAgent(ctx, r.UAID.Value, r.Secret)
	}
	if err != nil && !isGone(err) {
		m.logger.Warn("unregistering user agent failed",
			slog.String("profile", profile),
			slog.String("endpoint", r.AutopushEndpoint),
			slog.String("error", err.Error()))
	}
}

// Configure sets the autopush endpoint and debug flag of profile. Changing
// the endpoint unregisters the old uaid and drops all subscriptions;
// changing only debug keeps them. Identical parameters change nothing.
func (m *Manager) Configure(ctx context.Context, profile, endpoint string, debug bool, now time.Time) (*Registration, error) {
	if profile == "" {
		return nil, fmt.Errorf("profile: %w", ErrMissingField)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint: %w", ErrMissingField)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.store.Registration(profile)
	switch {
	case existing == nil:
		m.logger.Info("configuring push", slog.String("profile", profile), slog.String("endpoint", endpoint))
	case existing.AutopushEndpoint == endpoint && existing.Debug == debug:
		return existing, nil
	case existing.AutopushEndpoint == endpoint:
		existing.Debug = debug
		if err := m.put(profile, existing); err != nil {
			return nil, err
		}
		return existing, nil
	default:
		m.logger.Info("push endpoint changed; invalidating registration",
			slog.String("profile", profile),
			slog.String("from", existing.AutopushEndpoint),
			slog.String("to", endpoint))
		m.unregister(ctx, profile, existing)
	}

	r := NewRegistration(endpoint, debug)
	if err := m.put(profile, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterUserAgent makes sure profile holds a current uaid. A uaid older
// than the refresh interval, or older than the device token, is renewed.
func (m *Manager) RegisterUserAgent(ctx context.Context, profile string, now time.Time) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.store.Registration(profile)
	if r == nil {
		return nil, fmt.Errorf("%s: %w", profile, ErrProfileNeedsConfiguration)
	}
	token, err := m.tokens.GetToken(ctx, m.senderIDs, false)
	if err != nil {
		return nil, fmt.Errorf("fetching device token: %w", err)
	}

	if r.Registered() && !r.UAID.OlderThan(m.refreshInterval, now) && !token.Timestamp.After(r.UAID.Timestamp) {
		return r, nil
	}

	c, err := m.client(r)
	if err != nil {
		return nil, err
	}

	if r.Registered() {
		err := c.ReregisterUserAgent(ctx, r.UAID.Value, r.Secret, token.Value)
		if err == nil {
			refreshed := NewFetched(r.UAID.Value, now)
			r.UAID = &refreshed
			if err := m.put(profile, r); err != nil {
				return nil, err
			}
			return r, nil
		}
		if !isGone(err) {
			return nil, fmt.Errorf("re-registering user agent: %w", err)
		}
		m.logger.Info("push server forgot user agent; registering afresh", slog.String("profile", profile))
		r = NewRegistration(r.AutopushEndpoint, r.Debug)
	}

	resp, err := c.RegisterUserAgent(ctx, token.Value)
	if err != nil {
		return nil, fmt.Errorf("registering user agent: %w", err)
	}
	if resp.UAID == "" || resp.Secret == "" {
		return nil, fmt.Errorf("register response: %w", ErrMissingField)
	}
	uaid := NewFetched(resp.UAID, now)
	r.UAID = &uaid
	r.Secret = resp.Secret
	m.logger.Info("registered user agent", slog.String("profile", profile), slog.String("uaid", resp.UAID))
	if err := m.put(profile, r); err != nil {
		return nil, err
	}
	return r, nil
}

// SubscribeChannel opens a channel under profile's registration and stores
// the subscription under the server-issued channel id.
func (m *Manager) SubscribeChannel(ctx context.Context, profile, service string, serviceData map[string]any, appServerKey string, now time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.store.Registration(profile)
	if r == nil {
		return nil, fmt.Errorf("%s: %w", profile, ErrProfileNeedsConfiguration)
	}
	if !r.Registered() {
		return nil, fmt.Errorf("%s: %w", profile, ErrProfileNotRegistered)
	}

	c, err := m.client(r)
	if err != nil {
		return nil, err
	}
	resp, err := c.SubscribeChannel(ctx, r.UAID.Value, r.Secret, appServerKey)
	if err != nil {
		return nil, fmt.Errorf("subscribing channel: %w", err)
	}
	if resp.ChannelID == "" {
		return nil, fmt.Errorf("subscribe response channel id: %w", ErrMissingField)
	}

	sub := &Subscription{
		ChannelID:       resp.ChannelID,
		ProfileName:     profile,
		WebpushEndpoint: resp.Endpoint,
		Service:         service,
		ServiceData:     serviceData,
	}
	r.PutSubscription(sub)
	if err := m.put(profile, r); err != nil {
		return nil, err
	}
	return sub.Clone(), nil
}

// UnsubscribeChannel removes chid. An unknown chid is a no-op. The local
// entry is removed even if the push server fails; that failure is returned
// unless the server had already forgotten the channel.
func (m *Manager) UnsubscribeChannel(ctx context.Context, chid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, r := m.store.RegistrationForSubscription(chid)
	if r == nil {
		return nil
	}

	var remoteErr error
	if r.Registered() {
		c, err := m.client(r)
		if err == nil {
			err = c.UnsubscribeChannel(ctx, r.UAID.Value, r.Secret, chid)
		}
		if err != nil && !isGone(err) {
			remoteErr = fmt.Errorf("unsubscribing channel %s: %w", chid, err)
		}
	}

	r.RemoveSubscription(chid)
	if err := m.put(profile, r); err != nil {
		return err
	}
	return remoteErr
}

// RemoveProfile unregisters profile from its push server, best effort, and
// forgets it locally.
func (m *Manager) RemoveProfile(ctx context.Context, profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.store.Registration(profile)
	if r == nil {
		return nil
	}
	m.unregister(ctx, profile, r)
	m.store.RemoveRegistration(profile)
	return m.store.Checkpoint()
}

// Startup fetches a device token for the configured sender ids, whether or
// not any profile has registered yet.
func (m *Manager) Startup(ctx context.Context, now time.Time) (Fetched, error) {
	token, err := m.tokens.GetToken(ctx, m.senderIDs, false)
	if err != nil {
		return Fetched{}, fmt.Errorf("fetching device token: %w", err)
	}
	m.logger.Debug("push startup",
		slog.Int("profiles", len(m.store.Profiles())),
		slog.Time("tokenFetchedAt", token.Timestamp),
		slog.Time("now", now))
	return token, nil
}
