package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/fxaccount/storage"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "fxaccount.db"), nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltBackend(t *testing.T) {
	db := newTestDB(t)
	accounts := New(db, "accounts")
	push := New(db, "push")

	t.Run("MissingIsNotFound", func(t *testing.T) {
		if _, err := accounts.Load(); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveLoad", func(t *testing.T) {
		if err := accounts.Save([]byte(`{"default":1}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, err := accounts.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(got) != `{"default":1}` {
			t.Errorf("got %s", got)
		}
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		if _, err := push.Load(); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for an unsaved key, got %v", err)
		}
		if err := push.Save([]byte(`{}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, _ := accounts.Load()
		if string(got) != `{"default":1}` {
			t.Errorf("saving one key changed another: %s", got)
		}
	})

	t.Run("CustomBucket", func(t *testing.T) {
		b := NewInBucket(db, "other", "accounts")
		if _, err := b.Load(); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
