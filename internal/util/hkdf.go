package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

// HKDF derives HKDFKeyLength bytes from seed with HKDF-SHA256.
func HKDF(seed []byte, salt []byte, info []byte) ([]byte, error) {
	return HKDFLen(seed, salt, info, HKDFKeyLength)
}

// HKDFLen derives n bytes from seed with HKDF-SHA256. FxA token derivations
// read several 32-byte keys out of one expansion.
func HKDFLen(seed []byte, salt []byte, info []byte, n int) ([]byte, error) {
	h := hkdf.New(sha256.New, seed, salt, info)
	k := make([]byte, n)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
