// Package crypto implements the Firefox Accounts key derivations used by the
// login states: password stretching, authPW/unwrapKB derivation, kB
// recovery, and the client state and sync keys derived from kB.
package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/key"
)

const (
	namespace           = "identity.mozilla.com/picl/v1/"
	quickStretchRounds  = 1000
	clientStateBytes    = 16
	syncKeyBundleLength = 64
)

var (
	quickStretchPrefix = []byte(namespace + "quickStretch:")
	authPWInfo         = []byte(namespace + "authPW")
	unwrapKBInfo       = []byte(namespace + "unwrapBkey")
	oldSyncInfo        = []byte(namespace + "oldsync")
)

// QuickStretch derives quickStretchedPW from an email address and password.
func QuickStretch(email string, password []byte) (key.Key, error) {
	salt := append(append([]byte{}, quickStretchPrefix...), util.Normalize(email)...)
	pw := []byte(util.Normalize(string(password)))
	defer util.WipeBytes(pw)

	stretched := util.PBKDF2SHA256(pw, salt, quickStretchRounds, key.Size)
	defer util.WipeBytes(stretched)
	return key.New(key.QuickStretchedPW, stretched)
}

// StretchPassword stretches a password held in a memguard buffer and
// destroys the buffer afterwards.
func StretchPassword(email string, password *memguard.LockedBuffer) (key.Key, error) {
	defer password.Destroy()
	return QuickStretch(email, password.Bytes())
}

// AuthPW derives the authentication value sent to the server in place of
// the password.
func AuthPW(quickStretchedPW key.Key) ([]byte, error) {
	return util.HKDF(quickStretchedPW.Bytes(), nil, authPWInfo)
}

// UnwrapKB derives the key that unwraps the server-held wrapkB.
func UnwrapKB(quickStretchedPW key.Key) (key.Key, error) {
	raw, err := util.HKDF(quickStretchedPW.Bytes(), nil, unwrapKBInfo)
	if err != nil {
		return key.Key{}, fmt.Errorf("deriving unwrapkB: %w", err)
	}
	return key.New(key.UnwrapKB, raw)
}

// KBFromWrapKB recovers kB as wrapkB XOR unwrapkB.
func KBFromWrapKB(wrapKB, unwrapKB key.Key) (key.Key, error) {
	raw, err := util.Xor(wrapKB.Bytes(), unwrapKB.Bytes())
	if err != nil {
		return key.Key{}, fmt.Errorf("unwrapping kB: %w", err)
	}
	return key.New(key.KB, raw)
}

// ClientState is the public fingerprint of kB that storage servers use to
// detect a key change: the hex of the first 16 bytes of SHA-256(kB).
func ClientState(kB key.Key) string {
	sum := sha256.Sum256(kB.Bytes())
	return util.HexEncode(sum[:clientStateBytes])
}

// SyncKeyBundle holds the encryption and HMAC keys derived from kB for
// encrypting synced records.
type SyncKeyBundle struct {
	EncryptionKey []byte
	HMACKey       []byte
}

// DeriveSyncKeyBundle derives the sync key bundle from kB.
func DeriveSyncKeyBundle(kB key.Key) (SyncKeyBundle, error) {
	raw, err := util.HKDFLen(kB.Bytes(), nil, oldSyncInfo, syncKeyBundleLength)
	if err != nil {
		return SyncKeyBundle{}, fmt.Errorf("deriving sync key bundle: %w", err)
	}
	return SyncKeyBundle{
		EncryptionKey: raw[:32],
		HMACKey:       raw[32:],
	}, nil
}
