// Package storage defines where a store keeps its single JSON document and
// how that document is sealed at rest.
package storage

import "errors"

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("document not found")

// Backend holds one document. Save replaces the whole document; readers
// never observe a partial write.
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
}
