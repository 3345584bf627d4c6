package storage_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/storage"
	"github.com/jmcleod/fxaccount/storage/memory"
)

func newWrappingKey(t *testing.T) []byte {
	t.Helper()
	k, err := util.NewAESKey()
	require.NoError(t, err)
	return k
}

func TestSealed(t *testing.T) {
	raw := newWrappingKey(t)
	keyCopy := append([]byte(nil), raw...)
	inner := memory.New()

	s, err := storage.NewSealed(inner, raw, "push")
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(raw)), raw, "wrapping key should be wiped after use")

	doc := []byte(`{"default":{"uaid":null}}`)
	require.NoError(t, s.Save(doc))

	stored, err := inner.Load()
	require.NoError(t, err)
	assert.False(t, bytes.Contains(stored, []byte("uaid")), "document must be encrypted at rest")

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	t.Run("NotFoundPassesThrough", func(t *testing.T) {
		empty, err := storage.NewSealed(memory.New(), newWrappingKey(t), "push")
		require.NoError(t, err)
		_, err = empty.Load()
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PlaintextDocument", func(t *testing.T) {
		plain, err := storage.NewSealed(memory.NewWithDocument([]byte(`{"default":{}}`)), newWrappingKey(t), "push")
		require.NoError(t, err)
		_, err = plain.Load()
		assert.ErrorIs(t, err, storage.ErrNotSealed)
	})

	t.Run("BoundToName", func(t *testing.T) {
		other, err := storage.NewSealed(inner, append([]byte(nil), keyCopy...), "accounts")
		require.NoError(t, err)
		_, err = other.Load()
		require.Error(t, err)
		assert.False(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("SameKeyReopens", func(t *testing.T) {
		again, err := storage.NewSealed(inner, append([]byte(nil), keyCopy...), "push")
		require.NoError(t, err)
		got, err := again.Load()
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("WrongKeySize", func(t *testing.T) {
		_, err := storage.NewSealed(inner, []byte("short"), "push")
		assert.Error(t, err)
	})
}
