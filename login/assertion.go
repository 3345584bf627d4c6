package login

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/fxaccount/key"
)

// DefaultAssertionTTL is how long generated assertions stay valid.
const DefaultAssertionTTL = 5 * time.Minute

// Certificates issued by the account server express exp in milliseconds.
// Anything above this many seconds cannot be a seconds timestamp.
const maxSecondsTimestamp = 1e11

// certificateExpiry reads the exp claim of a certificate without verifying
// its signature; the certificate is only ever checked by relying parties.
func certificateExpiry(cert string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cert, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrNoCertificate, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrNoCertificate, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: certificate has no exp claim", ErrNoCertificate)
	}
	if exp.Unix() > maxSecondsTimestamp {
		return time.UnixMilli(exp.Unix()).UTC(), nil
	}
	return exp.UTC(), nil
}

// generateAssertion signs a short-lived assertion for audience with the
// certified keypair and joins it to the certificate as cert~assertion.
func generateAssertion(cert string, kp *key.KeyPair, audience string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if audience == "" {
		return "", fmt.Errorf("audience: %w", ErrMissingField)
	}
	if ttl <= 0 {
		ttl = DefaultAssertionTTL
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": audience,
		"iat": issuedAt.UnixMilli(),
		"exp": issuedAt.Add(ttl).UnixMilli(),
	})
	signed, err := token.SignedString(kp.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("signing assertion: %w", err)
	}
	return cert + "~" + signed, nil
}
