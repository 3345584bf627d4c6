package memory

import (
	"errors"
	"testing"

	"github.com/jmcleod/fxaccount/storage"
)

func TestMemoryBackend(t *testing.T) {
	b := New()
	if _, err := b.Load(); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc := []byte(`{"default":{}}`)
	if err := b.Save(doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	doc[0] = 'X'

	got, err := b.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != `{"default":{}}` {
		t.Errorf("Save should copy its input, got %s", got)
	}
	got[0] = 'Y'
	again, _ := b.Load()
	if again[0] != '{' {
		t.Error("Load should return a copy")
	}
	if b.Saves() != 1 {
		t.Errorf("expected 1 save, got %d", b.Saves())
	}

	t.Run("EmptyDocumentIsStored", func(t *testing.T) {
		b := New()
		b.Save(nil)
		if _, err := b.Load(); err != nil {
			t.Errorf("an explicitly saved empty document should load, got %v", err)
		}
	})

	t.Run("NewWithDocument", func(t *testing.T) {
		b := NewWithDocument([]byte("not json"))
		got, err := b.Load()
		if err != nil || string(got) != "not json" {
			t.Errorf("got %q, %v", got, err)
		}
	})
}
