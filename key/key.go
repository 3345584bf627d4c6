package key

import (
	"crypto/subtle"
	"fmt"

	"github.com/jmcleod/fxaccount/internal/util"
)

// Key is an immutable piece of key material. The zero Key holds no bytes
// and reports IsZero.
type Key struct {
	keyType Type
	bytes   []byte
}

// New copies b into a Key of type t. b must be exactly Size bytes.
func New(t Type, b []byte) (Key, error) {
	if len(b) != Size {
		return Key{}, fmt.Errorf("%s: invalid length %d, want %d", t, len(b), Size)
	}
	return Key{keyType: t, bytes: util.CopyBytes(b)}, nil
}

// ParseHex decodes a hex-encoded key of type t.
func ParseHex(t Type, s string) (Key, error) {
	b, err := util.HexDecodeLen(s, Size)
	if err != nil {
		return Key{}, fmt.Errorf("decoding %s: %w", t, err)
	}
	return Key{keyType: t, bytes: b}, nil
}

func (k Key) Type() Type {
	return k.keyType
}

// Bytes returns a copy of the key bytes.
func (k Key) Bytes() []byte {
	return util.CopyBytes(k.bytes)
}

func (k Key) Hex() string {
	return util.HexEncode(k.bytes)
}

func (k Key) IsZero() bool {
	return len(k.bytes) == 0
}

// Equal compares type and bytes in constant time.
func (k Key) Equal(other Key) bool {
	return k.keyType == other.keyType && subtle.ConstantTimeCompare(k.bytes, other.bytes) == 1
}

// String never prints key bytes so keys can be logged safely.
func (k Key) String() string {
	if k.IsZero() {
		return k.keyType.String() + "(empty)"
	}
	return k.keyType.String() + "(redacted)"
}
