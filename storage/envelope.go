package storage

import (
	"fmt"

	"github.com/jmcleod/fxaccount/internal/util"
)

const (
	envelopeVersion = 1
	envelopeScheme  = "aes256gcm"
)

// Envelope is a document sealed with AES-256-GCM.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealDocument encrypts plaintext into an Envelope bound to aad.
func SealDocument(wrappingKey, plaintext, aad []byte) (*Envelope, error) {
	nonce, ciphertext, err := util.SealAESGCM(plaintext, wrappingKey, aad)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     envelopeScheme,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// OpenDocument decrypts an Envelope sealed with the same key and aad.
func OpenDocument(wrappingKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope.Ver != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != envelopeScheme {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}
	return util.OpenAESGCM(envelope.Nonce, envelope.Ciphertext, wrappingKey, aad)
}
