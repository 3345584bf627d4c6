// Package login models the lifecycle of a Firefox Accounts login as a closed
// set of immutable states. A State's Execute performs at most one network
// action and reports exactly one Transition together with the next State.
//
// Happy path: Engaged -> Cohabiting -> Married. Revoked credentials lead to
// Separated and protocol incompatibility leads to Doghouse.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmcleod/fxaccount/fxaclient"
	"github.com/jmcleod/fxaccount/key"
)

// DefaultCertificateDuration is the lifetime requested for signed
// certificates when the delegate does not specify one.
const DefaultCertificateDuration = 12 * time.Hour

// Client is the account server contract the states depend on.
type Client interface {
	LoginAndGetKeys(ctx context.Context, emailUTF8 []byte, quickStretchedPW key.Key) (*fxaclient.LoginResponse, error)
	Sign(ctx context.Context, sessionToken key.Key, publicKeyJSON []byte, duration time.Duration) (string, error)
}

var _ Client = (*fxaclient.Client)(nil)

// ExecuteDelegate supplies what Execute needs and receives its outcome.
// HandleTransition is invoked exactly once per Execute.
type ExecuteDelegate interface {
	Client() Client
	CertificateDuration() time.Duration
	HandleTransition(t Transition, next State)
}

// State is one step of the login lifecycle. Implementations are immutable.
type State interface {
	Label() Label
	Email() string
	UID() string
	Verified() bool
	NeededAction() Action
	Execute(ctx context.Context, d ExecuteDelegate)
	json.Marshaler

	isState()
}

// base holds the fields every state carries.
type base struct {
	email    string
	uid      string
	verified bool
}

func (b base) Email() string  { return b.email }
func (b base) UID() string    { return b.uid }
func (b base) Verified() bool { return b.verified }
func (base) isState()         {}

// verificationAction is the needed action of states that only wait on the
// user confirming their email.
func (b base) verificationAction() Action {
	if b.verified {
		return ActionNone
	}
	return ActionNeedsVerification
}

// Separate returns the Separated state for s, as used on logout or when the
// server revokes the session.
func Separate(s State) *Separated {
	return &Separated{base: base{email: s.Email(), uid: s.UID(), verified: s.Verified()}}
}

// ToDoghouse returns the Doghouse state for s.
func ToDoghouse(s State) *Doghouse {
	return &Doghouse{base: base{email: s.Email(), uid: s.UID(), verified: s.Verified()}}
}

// failure maps an error from the account server to the transition and next
// state for current. Revoked credentials separate, protocol incompatibility
// and unreadable responses go to the doghouse, anything else stays put so
// the caller can retry.
func failure(current State, err error) (Transition, State) {
	remote, ok := fxaclient.AsRemoteError(err)
	switch {
	case !ok:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Transition{Kind: LogMessage, Detail: "request abandoned", Err: err}, current
		}
		return Transition{Kind: LogMessage, Detail: "transport failure", Err: err}, current
	case remote.Malformed:
		return Transition{Kind: LogMessage, Detail: "malformed server response", Err: err}, ToDoghouse(current)
	case remote.IsUpgradeRequired():
		return Transition{Kind: LogMessage, Detail: "client upgrade required", Err: err}, ToDoghouse(current)
	case remote.IsInvalidAuth():
		return Transition{Kind: LogMessage, Detail: "credentials rejected", Err: err}, Separate(current)
	default:
		return Transition{Kind: LogMessage, Detail: "server error", Err: err}, current
	}
}

func stay(s State, d ExecuteDelegate) {
	d.HandleTransition(logMessage("staying %s", s.Label()), s)
}
