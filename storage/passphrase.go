package storage

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/fxaccount/internal/util"
)

// SaltSize is the length of the salt WrappingKeyFromPassphrase expects.
const SaltSize = 16

// WrappingKeyFromPassphrase derives a wrapping key for NewSealed from a
// passphrase with Argon2id. The passphrase buffer is destroyed.
func WrappingKeyFromPassphrase(passphrase *memguard.LockedBuffer, salt []byte) ([]byte, error) {
	defer passphrase.Destroy()
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	if passphrase.Size() == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}
	return util.DeriveArgon2idKey(util.Normalize(passphrase.String()), salt, util.DefaultArgon2idParams())
}
