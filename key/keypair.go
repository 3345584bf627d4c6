package key

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

const (
	// Algorithm is the JOSE-style family name advertised for the keypair.
	Algorithm = "ES"
	curveName = "P-256"
	coordSize = 32
)

// KeyPair is an ECDSA P-256 signing keypair. The public half is sent to the
// account server to be certified; the private half signs assertions.
type KeyPair struct {
	private *ecdsa.PrivateKey
}

// GenerateKeyPair creates a fresh random keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &KeyPair{private: priv}, nil
}

// keyPairFromScalar rebuilds a keypair from its raw private scalar.
func keyPairFromScalar(d []byte) (*KeyPair, error) {
	priv, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), d)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &KeyPair{private: priv}, nil
}

// PrivateKey returns the signing key. Callers must not modify it.
func (kp *KeyPair) PrivateKey() *ecdsa.PrivateKey {
	return kp.private
}

// PublicKey returns the verifying key.
func (kp *KeyPair) PublicKey() *ecdsa.PublicKey {
	return &kp.private.PublicKey
}

func (kp *KeyPair) scalar() []byte {
	d, err := kp.private.Bytes()
	if err != nil {
		// Only reachable for keys not on a NIST curve, which this type never holds.
		panic(fmt.Sprintf("key: encoding private scalar: %v", err))
	}
	return d
}

// coordinates returns the fixed-width X and Y of the public point.
func (kp *KeyPair) coordinates() (x, y []byte) {
	point, err := kp.private.PublicKey.Bytes()
	if err != nil {
		panic(fmt.Sprintf("key: encoding public point: %v", err))
	}
	// Uncompressed point: 0x04 || X || Y.
	return point[1 : 1+coordSize], point[1+coordSize:]
}

// Equal reports whether both keypairs hold the same private scalar.
func (kp *KeyPair) Equal(other *KeyPair) bool {
	if kp == nil || other == nil {
		return kp == other
	}
	return subtle.ConstantTimeCompare(kp.scalar(), other.scalar()) == 1
}
