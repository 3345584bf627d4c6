// Package key provides the typed key material carried by FxA login states:
// raw tokens and keys with hex round trips, and the signing keypair used to
// obtain certificates and sign assertions.
package key

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type identifies what a piece of key material is used for.
type Type int

const (
	SessionToken Type = iota
	KeyFetchToken
	KA
	KB
	WrapKB
	UnwrapKB
	QuickStretchedPW
)

// Size is the length in bytes of every FxA token and key.
const Size = 32

// ErrUnknownType is returned when an unrecognized key type is encountered.
var ErrUnknownType = errors.New("unknown key type")

var typeNames = map[Type]string{
	SessionToken:     "SessionToken",
	KeyFetchToken:    "KeyFetchToken",
	KA:               "kA",
	KB:               "kB",
	WrapKB:           "wrapkB",
	UnwrapKB:         "unwrapkB",
	QuickStretchedPW: "QuickStretchedPW",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseType returns the Type with the given name.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownType)
}

func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unmarshaling key type: %w", err)
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
