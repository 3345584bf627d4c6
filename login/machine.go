package login

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Persister stores the state a machine transitions into.
type Persister interface {
	PersistState(profile string, s State) error
}

// Result is the outcome of one Advance.
type Result struct {
	Transition Transition
	State      State
	Err        error
}

// Machine drives the login state of one profile. Only one Advance may be in
// flight at a time; a concurrent call fails with ErrAdvanceInProgress
// instead of waiting.
type Machine struct {
	profile      string
	client       Client
	certDuration time.Duration
	persister    Persister
	logger       *slog.Logger
	onTransition func(Transition, State)

	mu    sync.RWMutex
	state State

	advancing atomic.Bool
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithCertificateDuration sets the lifetime requested for certificates.
// Default: DefaultCertificateDuration.
func WithCertificateDuration(d time.Duration) MachineOption {
	return func(m *Machine) {
		m.certDuration = d
	}
}

// WithPersister stores every new state through p.
func WithPersister(p Persister) MachineOption {
	return func(m *Machine) {
		m.persister = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithTransitionHook calls fn after each transition has been applied.
func WithTransitionHook(fn func(Transition, State)) MachineOption {
	return func(m *Machine) {
		m.onTransition = fn
	}
}

// NewMachine returns a Machine for profile starting at initial.
func NewMachine(profile string, initial State, client Client, opts ...MachineOption) (*Machine, error) {
	if profile == "" {
		return nil, fmt.Errorf("profile: %w", ErrMissingField)
	}
	if initial == nil {
		return nil, fmt.Errorf("initial state: %w", ErrMissingField)
	}
	m := &Machine{
		profile:      profile,
		client:       client,
		certDuration: DefaultCertificateDuration,
		logger:       slog.Default(),
		state:        initial,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Machine) Profile() string {
	return m.profile
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetState replaces the current state outside of Advance, for user actions
// such as entering a password or logging out.
func (m *Machine) SetState(s State) error {
	if m.advancing.Load() {
		return ErrAdvanceInProgress
	}
	return m.apply(logMessage("state set to %s", s.Label()), s)
}

func (m *Machine) apply(t Transition, next State) error {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	attrs := []any{
		slog.String("profile", m.profile),
		slog.String("from", prev.Label().String()),
		slog.String("to", next.Label().String()),
		slog.String("kind", t.Kind.String()),
		slog.String("detail", t.Detail),
	}
	if t.Err != nil {
		attrs = append(attrs, slog.String("error", t.Err.Error()))
	}
	if t.Kind == LocalError {
		m.logger.Error("login transition", attrs...)
	} else {
		m.logger.Info("login transition", attrs...)
	}

	if m.onTransition != nil {
		m.onTransition(t, next)
	}
	if m.persister != nil {
		if err := m.persister.PersistState(m.profile, next); err != nil {
			return fmt.Errorf("persisting %s state: %w", next.Label(), err)
		}
	}
	return nil
}

// delegate adapts a Machine to ExecuteDelegate for a single Execute and
// enforces that the transition is handled once.
type delegate struct {
	m      *Machine
	once   sync.Once
	result Result
	called bool
}

func (d *delegate) Client() Client                     { return d.m.client }
func (d *delegate) CertificateDuration() time.Duration { return d.m.certDuration }

func (d *delegate) HandleTransition(t Transition, next State) {
	handled := false
	d.once.Do(func() {
		handled = true
		d.called = true
		d.result = Result{Transition: t, State: next}
		d.result.Err = d.m.apply(t, next)
	})
	if !handled {
		d.m.logger.Error("ignoring repeated transition",
			slog.String("profile", d.m.profile),
			slog.String("to", next.Label().String()))
	}
}

// Advance executes the current state once and applies the resulting
// transition. The returned error reports persistence failures and misuse;
// network failures are described by the Result's Transition.
func (m *Machine) Advance(ctx context.Context) (Result, error) {
	if !m.advancing.CompareAndSwap(false, true) {
		return Result{}, ErrAdvanceInProgress
	}
	defer m.advancing.Store(false)

	current := m.State()
	d := &delegate{m: m}
	current.Execute(ctx, d)
	if !d.called {
		return Result{}, fmt.Errorf("%s: %w", current.Label(), ErrNoTransition)
	}
	return d.result, d.result.Err
}

// AdvanceAsync runs Advance in a goroutine. The channel delivers exactly one
// Result and is then closed.
func (m *Machine) AdvanceAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	if m.advancing.Load() {
		ch <- Result{Err: ErrAdvanceInProgress}
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		res, err := m.Advance(ctx)
		res.Err = err
		ch <- res
	}()
	return ch
}

// AdvanceUntilStable advances until a step leaves the label unchanged or
// maxSteps have run, and returns the final state.
func (m *Machine) AdvanceUntilStable(ctx context.Context, maxSteps int) (State, error) {
	for range maxSteps {
		before := m.State().Label()
		res, err := m.Advance(ctx)
		if err != nil {
			return m.State(), err
		}
		if res.State.Label() == before {
			break
		}
		if err := ctx.Err(); err != nil {
			return m.State(), err
		}
	}
	return m.State(), nil
}
