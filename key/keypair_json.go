package key

import (
	"encoding/json"
	"fmt"

	"github.com/jmcleod/fxaccount/internal/util"
)

type jsonPublicKey struct {
	Algorithm string `json:"algorithm"`
	Curve     string `json:"curve"`
	X         string `json:"x"`
	Y         string `json:"y"`
}

type jsonPrivateKey struct {
	Algorithm string `json:"algorithm"`
	Curve     string `json:"curve"`
	D         string `json:"d"`
}

type jsonKeyPair struct {
	PublicKey  jsonPublicKey  `json:"publicKey"`
	PrivateKey jsonPrivateKey `json:"privateKey"`
}

func (kp *KeyPair) publicJSON() jsonPublicKey {
	x, y := kp.coordinates()
	return jsonPublicKey{
		Algorithm: Algorithm,
		Curve:     curveName,
		X:         util.HexEncode(x),
		Y:         util.HexEncode(y),
	}
}

// PublicKeyJSON is the public key object sent with a certificate sign
// request.
func (kp *KeyPair) PublicKeyJSON() ([]byte, error) {
	return json.Marshal(kp.publicJSON())
}

func (kp *KeyPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(&jsonKeyPair{
		PublicKey: kp.publicJSON(),
		PrivateKey: jsonPrivateKey{
			Algorithm: Algorithm,
			Curve:     curveName,
			D:         util.HexEncode(kp.scalar()),
		},
	})
}

// UnmarshalKeyPair deserializes a KeyPair and checks that the stored public
// key matches the one implied by the private scalar.
func UnmarshalKeyPair(message json.RawMessage) (*KeyPair, error) {
	var jkp jsonKeyPair
	if err := json.Unmarshal(message, &jkp); err != nil {
		return nil, fmt.Errorf("unmarshaling keypair JSON: %w", err)
	}
	if jkp.PrivateKey.Algorithm != Algorithm || jkp.PrivateKey.Curve != curveName {
		return nil, fmt.Errorf("unsupported keypair %s/%s", jkp.PrivateKey.Algorithm, jkp.PrivateKey.Curve)
	}
	d, err := util.HexDecodeLen(jkp.PrivateKey.D, coordSize)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	kp, err := keyPairFromScalar(d)
	if err != nil {
		return nil, err
	}

	x, y := kp.coordinates()
	if jkp.PublicKey.X != util.HexEncode(x) || jkp.PublicKey.Y != util.HexEncode(y) {
		return nil, fmt.Errorf("public key does not match private key")
	}
	return kp, nil
}
