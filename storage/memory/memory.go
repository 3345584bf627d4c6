// Package memory provides a thread-safe in-memory storage.Backend.
package memory

import (
	"sync"

	"github.com/jmcleod/fxaccount/storage"
)

// Backend keeps the document in memory. Suitable for tests and for
// profiles that must not touch disk.
type Backend struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

var _ storage.Backend = (*Backend)(nil)

// New returns an empty Backend.
func New() *Backend {
	return &Backend{}
}

// NewWithDocument returns a Backend that already holds data.
func NewWithDocument(data []byte) *Backend {
	return &Backend{data: append([]byte(nil), data...)}
}

func (b *Backend) Load() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b.data...), nil
}

func (b *Backend) Save(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte{}, data...)
	b.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (b *Backend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}
