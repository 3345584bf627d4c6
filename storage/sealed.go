package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/fxaccount/internal/util"
)

// ErrNotSealed is returned when a stored document is not an Envelope.
var ErrNotSealed = errors.New("document is not sealed")

// Sealed wraps a Backend so the document is encrypted at rest. The
// wrapping key stays in a memguard enclave between uses.
type Sealed struct {
	inner Backend
	key   *memguard.Enclave
	aad   []byte
}

var _ Backend = (*Sealed)(nil)

// NewSealed returns a Sealed backend over inner. The document is bound to
// name so documents cannot be swapped between stores. wrappingKey is wiped.
func NewSealed(inner Backend, wrappingKey []byte, name string) (*Sealed, error) {
	if len(wrappingKey) != util.AESKeySize {
		util.WipeBytes(wrappingKey)
		return nil, fmt.Errorf("wrapping key must be %d bytes, got %d", util.AESKeySize, len(wrappingKey))
	}
	return &Sealed{
		inner: inner,
		key:   memguard.NewEnclave(wrappingKey),
		aad:   []byte("fxaccount:" + name),
	}, nil
}

func (s *Sealed) Load() ([]byte, error) {
	data, err := s.inner.Load()
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Ver == 0 {
		return nil, ErrNotSealed
	}

	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening wrapping key: %w", err)
	}
	defer buf.Destroy()

	plaintext, err := OpenDocument(buf.Bytes(), &env, s.aad)
	if err != nil {
		return nil, fmt.Errorf("unsealing document: %w", err)
	}
	return plaintext, nil
}

func (s *Sealed) Save(data []byte) error {
	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening wrapping key: %w", err)
	}
	defer buf.Destroy()

	env, err := SealDocument(buf.Bytes(), data, s.aad)
	if err != nil {
		return fmt.Errorf("sealing document: %w", err)
	}
	sealed, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return s.inner.Save(sealed)
}
