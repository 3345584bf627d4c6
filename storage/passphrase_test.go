package storage_test

import (
	"bytes"
	"testing"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/storage"
	"github.com/jmcleod/fxaccount/storage/memory"
)

func TestWrappingKeyFromPassphrase(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, storage.SaltSize)
	pass := func(s string) *memguard.LockedBuffer { return memguard.NewBufferFromBytes([]byte(s)) }

	k1, err := storage.WrappingKeyFromPassphrase(pass("correct horse"), salt)
	require.NoError(t, err)
	assert.Len(t, k1, util.AESKeySize)

	k2, err := storage.WrappingKeyFromPassphrase(pass("correct horse"), salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := storage.WrappingKeyFromPassphrase(pass("correct horse"), bytes.Repeat([]byte{8}, storage.SaltSize))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	t.Run("SealsDocuments", func(t *testing.T) {
		inner := memory.New()
		sealed, err := storage.NewSealed(inner, util.CopyBytes(k1), "accounts")
		require.NoError(t, err)
		require.NoError(t, sealed.Save([]byte(`{"a":1}`)))

		again, err := storage.NewSealed(inner, util.CopyBytes(k2), "accounts")
		require.NoError(t, err)
		got, err := again.Load()
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(got))
	})

	t.Run("BadSalt", func(t *testing.T) {
		_, err := storage.WrappingKeyFromPassphrase(pass("x"), []byte{1})
		require.Error(t, err)
	})

	t.Run("EmptyPassphrase", func(t *testing.T) {
		_, err := storage.WrappingKeyFromPassphrase(memguard.NewBuffer(0), salt)
		require.Error(t, err)
	})
}
