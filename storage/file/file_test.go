package file

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/fxaccount/storage"
)

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	b := New(filepath.Join(dir, "nested", "push.json"))

	t.Run("MissingIsNotFound", func(t *testing.T) {
		_, err := b.Load()
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveLoad", func(t *testing.T) {
		if err := b.Save([]byte(`{"a":1}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, err := b.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(got) != `{"a":1}` {
			t.Errorf("got %s", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := b.Save([]byte(`{"b":2}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, _ := b.Load()
		if string(got) != `{"b":2}` {
			t.Errorf("got %s", got)
		}
	})

	t.Run("NoTemporaryFilesLeft", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Dir(b.Path()))
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		if len(entries) != 1 || entries[0].Name() != "push.json" {
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			t.Errorf("unexpected directory contents: %v", names)
		}
	})

	t.Run("FileMode", func(t *testing.T) {
		info, err := os.Stat(b.Path())
		if err != nil {
			t.Fatalf("Stat failed: %v", err)
		}
		if info.Mode().Perm()&0o077 != 0 {
			t.Errorf("document readable by others: %v", info.Mode())
		}
	})

	t.Run("EmptyIsNotFound", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.json")
		if err := os.WriteFile(empty, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := New(empty).Load()
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
