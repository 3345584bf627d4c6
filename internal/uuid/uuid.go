// Package uuid generates random identifiers for devices, channels and tokens.
package uuid

import guuid "github.com/google/uuid"

// New returns a random (version 4) UUID in its canonical string form.
func New() string {
	return guuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return guuid.Validate(s) == nil
}
