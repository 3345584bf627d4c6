package fxaclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/key"
)

const namespace = "identity.mozilla.com/picl/v1/"

var (
	sessionTokenInfo  = []byte(namespace + "sessionToken")
	keyFetchTokenInfo = []byte(namespace + "keyFetchToken")
	accountKeysInfo   = []byte(namespace + "account/keys")
)

// hawkCredentials identify and authenticate a request made with a token.
type hawkCredentials struct {
	id      string
	hmacKey []byte
}

func sessionCredentials(sessionToken key.Key) (hawkCredentials, error) {
	raw, err := util.HKDFLen(sessionToken.Bytes(), nil, sessionTokenInfo, 2*key.Size)
	if err != nil {
		return hawkCredentials{}, fmt.Errorf("deriving session token credentials: %w", err)
	}
	return hawkCredentials{id: util.HexEncode(raw[:key.Size]), hmacKey: raw[key.Size:]}, nil
}

// keyFetchCredentials returns the Hawk credentials for a keyFetchToken plus
// the keyRequestKey needed to open the returned bundle.
func keyFetchCredentials(keyFetchToken key.Key) (hawkCredentials, []byte, error) {
	raw, err := util.HKDFLen(keyFetchToken.Bytes(), nil, keyFetchTokenInfo, 3*key.Size)
	if err != nil {
		return hawkCredentials{}, nil, fmt.Errorf("deriving key fetch token credentials: %w", err)
	}
	creds := hawkCredentials{id: util.HexEncode(raw[:key.Size]), hmacKey: raw[key.Size : 2*key.Size]}
	return creds, raw[2*key.Size:], nil
}

// bundleKeys derives the HMAC and XOR keys protecting an account/keys bundle.
func bundleKeys(keyRequestKey []byte) (hmacKey, xorKey []byte, err error) {
	raw, err := util.HKDFLen(keyRequestKey, nil, accountKeysInfo, 3*key.Size)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving bundle keys: %w", err)
	}
	return raw[:key.Size], raw[key.Size:], nil
}

// openKeysBundle verifies and decrypts a bundle into kA and wrapkB.
func openKeysBundle(keyRequestKey, bundle []byte) (kA, wrapKB key.Key, err error) {
	if len(bundle) != 3*key.Size {
		return key.Key{}, key.Key{}, fmt.Errorf("bundle has %d bytes, want %d", len(bundle), 3*key.Size)
	}
	hmacKey, xorKey, err := bundleKeys(keyRequestKey)
	if err != nil {
		return key.Key{}, key.Key{}, err
	}
	ciphertext, mac := bundle[:2*key.Size], bundle[2*key.Size:]

	h := hmac.New(sha256.New, hmacKey)
	h.Write(ciphertext)
	if !hmac.Equal(h.Sum(nil), mac) {
		return key.Key{}, key.Key{}, fmt.Errorf("bundle HMAC mismatch")
	}

	plaintext, err := util.Xor(ciphertext, xorKey)
	if err != nil {
		return key.Key{}, key.Key{}, err
	}
	defer util.WipeBytes(plaintext)

	if kA, err = key.New(key.KA, plaintext[:key.Size]); err != nil {
		return key.Key{}, key.Key{}, err
	}
	if wrapKB, err = key.New(key.WrapKB, plaintext[key.Size:]); err != nil {
		return key.Key{}, key.Key{}, err
	}
	return kA, wrapKB, nil
}
