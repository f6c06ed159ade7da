package storage

import (
	"bytes"
	"fmt"
	"testing"
)

// newTestStorage creates a temporary storage for testing.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("s:abc")
	value := []byte{0x01, 0x02, 0x03}

	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %x, want %x", got, value)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("expected nil for missing key, got %x", got)
	}
}

func TestHas(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ok, err := s.Has([]byte("k"))
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !ok {
		t.Error("expected Has to report true for existing key")
	}

	ok, err = s.Has([]byte("absent"))
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if ok {
		t.Error("expected Has to report false for missing key")
	}
}

func TestSetBatch(t *testing.T) {
	s := newTestStorage(t)

	pairs := []KeyValue{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("Get %q failed: %v", kv.Key, err)
		}
		if !bytes.Equal(got, kv.Value) {
			t.Errorf("Get %q returned %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("s:%d", i)
		if err := s.Set([]byte(key), []byte{byte(i)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := s.Set([]byte("d:0"), []byte{0xFF}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var visited int

	err := s.IteratePrefix([]byte("s:"), func(key, value []byte) error {
		if !bytes.HasPrefix(key, []byte("s:")) {
			t.Errorf("unexpected key %q in prefix scan", key)
		}
		visited++
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if visited != 5 {
		t.Errorf("visited %d keys, want 5", visited)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir() + "/db"

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	if err := s.Set([]byte("k"), []byte("persisted")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, []byte("persisted")) {
		t.Errorf("Get after reopen returned %q, want %q", got, "persisted")
	}
}
