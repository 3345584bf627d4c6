package login

import (
	"context"
	"fmt"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/fxaccount/crypto"
	"github.com/jmcleod/fxaccount/fxaclient"
	"github.com/jmcleod/fxaccount/key"
)

// generateKeyPair is replaced in tests to exercise keypair failures.
var generateKeyPair = key.GenerateKeyPair

func requireKey(name string, k key.Key, t key.Type) error {
	if k.IsZero() {
		return fmt.Errorf("%s: %w", name, ErrMissingField)
	}
	if k.Type() != t {
		return fmt.Errorf("%s: got key type %s, want %s", name, k.Type(), t)
	}
	return nil
}

func newBase(email, uid string, verified bool) (base, error) {
	if email == "" {
		return base{}, fmt.Errorf("email: %w", ErrMissingField)
	}
	return base{email: email, uid: uid, verified: verified}, nil
}

// Engaged knows the stretched password but has no session yet.
type Engaged struct {
	base
	quickStretchedPW key.Key
	unwrapKB         key.Key
}

// NewEngaged returns an Engaged state.
func NewEngaged(email, uid string, verified bool, quickStretchedPW, unwrapKB key.Key) (*Engaged, error) {
	b, err := newBase(email, uid, verified)
	if err != nil {
		return nil, err
	}
	if err := requireKey("quickStretchedPW", quickStretchedPW, key.QuickStretchedPW); err != nil {
		return nil, err
	}
	if err := requireKey("unwrapkB", unwrapKB, key.UnwrapKB); err != nil {
		return nil, err
	}
	return &Engaged{base: b, quickStretchedPW: quickStretchedPW, unwrapKB: unwrapKB}, nil
}

// NewEngagedFromPassword stretches password and returns the Engaged state a
// fresh sign-in starts from. The password buffer is destroyed.
func NewEngagedFromPassword(email, uid string, password *memguard.LockedBuffer) (*Engaged, error) {
	qs, err := crypto.StretchPassword(email, password)
	if err != nil {
		return nil, fmt.Errorf("stretching password: %w", err)
	}
	unwrapKB, err := crypto.UnwrapKB(qs)
	if err != nil {
		return nil, err
	}
	return NewEngaged(email, uid, false, qs, unwrapKB)
}

func (*Engaged) Label() Label                { return LabelEngaged }
func (s *Engaged) NeededAction() Action      { return s.verificationAction() }
func (s *Engaged) QuickStretchedPW() key.Key { return s.quickStretchedPW }
func (s *Engaged) UnwrapKB() key.Key         { return s.unwrapKB }

// Execute logs in and fetches keys. A verified account moves on to
// Cohabiting with a fresh keypair.
func (s *Engaged) Execute(ctx context.Context, d ExecuteDelegate) {
	resp, err := d.Client().LoginAndGetKeys(ctx, []byte(s.email), s.quickStretchedPW)
	if err != nil {
		d.HandleTransition(failure(s, err))
		return
	}

	if !resp.Verified {
		next := &Engaged{
			base:             base{email: s.email, uid: resp.UID, verified: false},
			quickStretchedPW: s.quickStretchedPW,
			unwrapKB:         s.unwrapKB,
		}
		d.HandleTransition(logMessage("account not yet verified"), next)
		return
	}

	kB, err := crypto.KBFromWrapKB(resp.WrapKB, s.unwrapKB)
	if err != nil {
		d.HandleTransition(localError(err, "unwrapping kB"), ToDoghouse(s))
		return
	}
	kp, err := generateKeyPair()
	if err != nil {
		d.HandleTransition(localError(err, "generating keypair"), ToDoghouse(s))
		return
	}
	next, err := NewCohabiting(s.email, resp.UID, true, resp.SessionToken, resp.KA, kB, kp)
	if err != nil {
		d.HandleTransition(localError(err, "building Cohabiting state"), ToDoghouse(s))
		return
	}
	d.HandleTransition(logMessage("logged in and fetched keys"), next)
}

// session is the material shared by Cohabiting and Married.
type session struct {
	sessionToken key.Key
	kA           key.Key
	kB           key.Key
	keyPair      *key.KeyPair
}

func newSession(sessionToken, kA, kB key.Key, kp *key.KeyPair) (session, error) {
	if err := requireKey("sessionToken", sessionToken, key.SessionToken); err != nil {
		return session{}, err
	}
	if err := requireKey("kA", kA, key.KA); err != nil {
		return session{}, err
	}
	if err := requireKey("kB", kB, key.KB); err != nil {
		return session{}, err
	}
	if kp == nil {
		return session{}, fmt.Errorf("keyPair: %w", ErrMissingField)
	}
	return session{sessionToken: sessionToken, kA: kA, kB: kB, keyPair: kp}, nil
}

func (s session) SessionToken() key.Key     { return s.sessionToken }
func (s session) KA() key.Key               { return s.kA }
func (s session) KB() key.Key               { return s.kB }
func (s session) KeyPair() *key.KeyPair     { return s.keyPair }
func (s session) ClientState() string       { return crypto.ClientState(s.kB) }

// SyncKeys derives the keys used to encrypt synced records.
func (s session) SyncKeys() (crypto.SyncKeyBundle, error) {
	return crypto.DeriveSyncKeyBundle(s.kB)
}

// Cohabiting holds a session and keys but no certificate yet.
type Cohabiting struct {
	base
	session
}

// NewCohabiting returns a Cohabiting state.
func NewCohabiting(email, uid string, verified bool, sessionToken, kA, kB key.Key, kp *key.KeyPair) (*Cohabiting, error) {
	b, err := newBase(email, uid, verified)
	if err != nil {
		return nil, err
	}
	sess, err := newSession(sessionToken, kA, kB, kp)
	if err != nil {
		return nil, err
	}
	return &Cohabiting{base: b, session: sess}, nil
}

func (*Cohabiting) Label() Label           { return LabelCohabiting }
func (s *Cohabiting) NeededAction() Action { return s.verificationAction() }

// Execute asks the server to sign the public key and moves to Married.
func (s *Cohabiting) Execute(ctx context.Context, d ExecuteDelegate) {
	publicKey, err := s.keyPair.PublicKeyJSON()
	if err != nil {
		d.HandleTransition(localError(err, "encoding public key"), ToDoghouse(s))
		return
	}
	duration := d.CertificateDuration()
	if duration <= 0 {
		duration = DefaultCertificateDuration
	}

	cert, err := d.Client().Sign(ctx, s.sessionToken, publicKey, duration)
	if err != nil {
		if remote, ok := fxaclient.AsRemoteError(err); ok && remote.IsUnverified() {
			next := &Cohabiting{base: base{email: s.email, uid: s.uid, verified: false}, session: s.session}
			d.HandleTransition(Transition{Kind: LogMessage, Detail: "account not yet verified", Err: err}, next)
			return
		}
		d.HandleTransition(failure(s, err))
		return
	}

	next, err := NewMarried(s.email, s.uid, true, s.sessionToken, s.kA, s.kB, s.keyPair, cert)
	if err != nil {
		d.HandleTransition(Transition{Kind: LogMessage, Detail: "unreadable certificate", Err: err}, ToDoghouse(s))
		return
	}
	d.HandleTransition(logMessage("certificate signed"), next)
}

// Married holds a signed certificate and can generate assertions.
type Married struct {
	base
	session
	certificate string
	expiresAt   time.Time
}

// NewMarried returns a Married state. The certificate must carry an
// expiry.
func NewMarried(email, uid string, verified bool, sessionToken, kA, kB key.Key, kp *key.KeyPair, certificate string) (*Married, error) {
	b, err := newBase(email, uid, verified)
	if err != nil {
		return nil, err
	}
	sess, err := newSession(sessionToken, kA, kB, kp)
	if err != nil {
		return nil, err
	}
	if certificate == "" {
		return nil, fmt.Errorf("certificate: %w", ErrMissingField)
	}
	expiresAt, err := certificateExpiry(certificate)
	if err != nil {
		return nil, err
	}
	return &Married{base: b, session: sess, certificate: certificate, expiresAt: expiresAt}, nil
}

func (*Married) Label() Label          { return LabelMarried }
func (*Married) NeededAction() Action  { return ActionNone }
func (s *Married) Certificate() string { return s.certificate }

// CertificateExpiresAt is the expiry carried by the certificate.
func (s *Married) CertificateExpiresAt() time.Time { return s.expiresAt }

// CertificateExpired reports whether the certificate is no longer valid at now.
func (s *Married) CertificateExpired(now time.Time) bool {
	return !now.Before(s.expiresAt)
}

// WithoutCertificate drops the certificate so the next Execute signs a new
// one.
func (s *Married) WithoutCertificate() *Cohabiting {
	return &Cohabiting{base: s.base, session: s.session}
}

// GenerateAssertion signs an assertion for audience and returns it bundled
// with the certificate.
func (s *Married) GenerateAssertion(audience string, issuedAt time.Time, ttl time.Duration) (string, error) {
	return generateAssertion(s.certificate, s.keyPair, audience, issuedAt, ttl)
}

func (s *Married) Execute(_ context.Context, d ExecuteDelegate) { stay(s, d) }

// Separated lost its session remotely. The user must enter their password.
type Separated struct {
	base
}

// NewSeparated returns a Separated state.
func NewSeparated(email, uid string, verified bool) (*Separated, error) {
	b, err := newBase(email, uid, verified)
	if err != nil {
		return nil, err
	}
	return &Separated{base: b}, nil
}

func (*Separated) Label() Label                                 { return LabelSeparated }
func (*Separated) NeededAction() Action                         { return ActionNeedsPassword }
func (s *Separated) Execute(_ context.Context, d ExecuteDelegate) { stay(s, d) }

// Reauthenticate returns the Engaged state reached by entering the password
// again. The password buffer is destroyed.
func (s *Separated) Reauthenticate(password *memguard.LockedBuffer) (*Engaged, error) {
	return NewEngagedFromPassword(s.email, s.uid, password)
}

// Doghouse means this client can no longer talk to the server and needs an
// upgrade.
type Doghouse struct {
	base
}

// NewDoghouse returns a Doghouse state.
func NewDoghouse(email, uid string, verified bool) (*Doghouse, error) {
	b, err := newBase(email, uid, verified)
	if err != nil {
		return nil, err
	}
	return &Doghouse{base: b}, nil
}

func (*Doghouse) Label() Label                                 { return LabelDoghouse }
func (*Doghouse) NeededAction() Action                         { return ActionNeedsUpgrade }
func (s *Doghouse) Execute(_ context.Context, d ExecuteDelegate) { stay(s, d) }

// MigratedFromSync11 marks an account carried over from legacy Sync that
// still needs the user's password to finish signing in.
type MigratedFromSync11 struct {
	base
}

// NewMigratedFromSync11 returns a MigratedFromSync11 state.
func NewMigratedFromSync11(email, uid string, verified bool) (*MigratedFromSync11, error) {
	b, err := newBase(email, uid, verified)
	if err != nil {
		return nil, err
	}
	return &MigratedFromSync11{base: b}, nil
}

func (*MigratedFromSync11) Label() Label                                 { return LabelMigratedFromSync11 }
func (*MigratedFromSync11) NeededAction() Action                         { return ActionNeedsFinishMigrating }
func (s *MigratedFromSync11) Execute(_ context.Context, d ExecuteDelegate) { stay(s, d) }

// FinishMigrating returns the Engaged state reached once the user supplies
// their password. The password buffer is destroyed.
func (s *MigratedFromSync11) FinishMigrating(password *memguard.LockedBuffer) (*Engaged, error) {
	return NewEngagedFromPassword(s.email, s.uid, password)
}

var (
	_ State = (*Engaged)(nil)
	_ State = (*Cohabiting)(nil)
	_ State = (*Married)(nil)
	_ State = (*Separated)(nil)
	_ State = (*Doghouse)(nil)
	_ State = (*MigratedFromSync11)(nil)
)
