package account

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fxaccount/key"
	"github.com/jmcleod/fxaccount/login"
	"github.com/jmcleod/fxaccount/storage"
	"github.com/jmcleod/fxaccount/storage/file"
	"github.com/jmcleod/fxaccount/storage/memory"
)

func testEngaged(t *testing.T, email string) *login.Engaged {
	t.Helper()
	qs, err := key.New(key.QuickStretchedPW, bytes.Repeat([]byte{1}, key.Size))
	require.NoError(t, err)
	unwrap, err := key.New(key.UnwrapKB, bytes.Repeat([]byte{2}, key.Size))
	require.NoError(t, err)
	s, err := login.NewEngaged(email, "uid", false, qs, unwrap)
	require.NoError(t, err)
	return s
}

func testCohabiting(t *testing.T) *login.Cohabiting {
	t.Helper()
	mk := func(kt key.Type, b byte) key.Key {
		k, err := key.New(kt, bytes.Repeat([]byte{b}, key.Size))
		require.NoError(t, err)
		return k
	}
	kp, err := key.GenerateKeyPair()
	require.NoError(t, err)
	s, err := login.NewCohabiting("b@example.org", "uid-b", true,
		mk(key.SessionToken, 3), mk(key.KA, 4), mk(key.KB, 5), kp)
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	s, err := Open(file.New(path))
	require.NoError(t, err)
	assert.Empty(t, s.Profiles())
	assert.Nil(t, s.State("default"))

	engaged := testEngaged(t, "a@example.org")
	cohabiting := testCohabiting(t)
	s.PutState("default", engaged)
	s.PutState("work", cohabiting)
	require.NoError(t, s.Checkpoint())

	reopened, err := Open(file.New(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "work"}, reopened.Profiles())

	got := reopened.State("default")
	require.NotNil(t, got)
	assert.Equal(t, login.LabelEngaged, got.Label())
	assert.True(t, engaged.QuickStretchedPW().Equal(got.(*login.Engaged).QuickStretchedPW()))

	work := reopened.State("work").(*login.Cohabiting)
	assert.True(t, cohabiting.KeyPair().Equal(work.KeyPair()))
	assert.True(t, cohabiting.KB().Equal(work.KB()))
}

func TestStoreNotPersistedUntilCheckpoint(t *testing.T) {
	backend := memory.New()
	s, err := Open(backend)
	require.NoError(t, err)

	s.PutState("default", testEngaged(t, "a@example.org"))
	assert.Equal(t, 0, backend.Saves())

	require.NoError(t, s.PersistState("default", login.Separate(s.State("default"))))
	assert.Equal(t, 1, backend.Saves())

	reopened, err := Open(backend)
	require.NoError(t, err)
	assert.Equal(t, login.LabelSeparated, reopened.State("default").Label())
}

func TestStoreDelete(t *testing.T) {
	s, err := Open(memory.New())
	require.NoError(t, err)
	s.PutState("default", testEngaged(t, "a@example.org"))

	assert.True(t, s.DeleteState("default"))
	assert.False(t, s.DeleteState("default"))
	assert.Nil(t, s.State("default"))
}

func TestStoreCorruption(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("InvalidJSON", func(t *testing.T) {
		s, err := Open(memory.NewWithDocument([]byte(`{"default": {`)), WithLogger(logger))
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Empty(t, s.Profiles())
	})

	t.Run("WrongShape", func(t *testing.T) {
		s, err := Open(memory.NewWithDocument([]byte(`[1,2,3]`)), WithLogger(logger))
		require.NoError(t, err)
		assert.Empty(t, s.Profiles())
	})

	t.Run("OneBadEntry", func(t *testing.T) {
		good, err := login.MarshalRecord(testEngaged(t, "a@example.org"))
		require.NoError(t, err)
		doc, err := json.Marshal(map[string]json.RawMessage{
			"default": good,
			"future":  json.RawMessage(`{"stateLabel":"Married","state":{"version":99}}`),
			"unknown": json.RawMessage(`{"stateLabel":"Divorced","state":{}}`),
		})
		require.NoError(t, err)

		s, err := Open(memory.NewWithDocument(doc), WithLogger(logger))
		require.NoError(t, err)
		assert.Equal(t, []string{"default"}, s.Profiles())
	})

	t.Run("BackendFailure", func(t *testing.T) {
		_, err := Open(failingBackend{}, WithLogger(logger))
		assert.Error(t, err)
	})
}

type failingBackend struct{}

func (failingBackend) Load() ([]byte, error) { return nil, errors.New("permission denied") }
func (failingBackend) Save([]byte) error     { return errors.New("permission denied") }

var _ storage.Backend = failingBackend{}

func TestStoreCheckpointFailure(t *testing.T) {
	s := &Store{backend: failingBackend{}, logger: slog.Default(), states: map[string]login.State{}}
	s.PutState("default", testEngaged(t, "a@example.org"))
	assert.Error(t, s.Checkpoint())
}
