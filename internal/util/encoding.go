package util

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFC form of s. Emails and passwords are normalized
// before they are fed into key stretching so that visually identical input
// always stretches to the same key.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// HexDecodeLen decodes s and checks that it holds exactly n bytes.
func HexDecodeLen(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}
