package sqlitekv

import (
	"path/filepath"
	"testing"
)

func TestUpsertLookupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.db")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, ok, err := a.Lookup("weather"); err != nil || ok {
		t.Fatalf("Lookup on empty table: got (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	if err := a.Upsert("weather", "sunny"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	msg, ok, err := a.Lookup("weather")
	if err != nil || !ok || msg != "sunny" {
		t.Fatalf("Lookup after Upsert: got (%q, %v, %v)", msg, ok, err)
	}
}

func TestUpsertOverwritesOnConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.db")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if err := a.Upsert("weather", "sunny"); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if err := a.Upsert("weather", "rainy"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	msg, ok, err := a.Lookup("weather")
	if err != nil || !ok || msg != "rainy" {
		t.Fatalf("expected conflict upsert to overwrite: got (%q, %v, %v)", msg, ok, err)
	}
}

func TestReopenPersistsAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.db")

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Upsert("weather", "sunny"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := New(path)
	if err != nil {
		t.Fatalf("reopen New: %v", err)
	}
	defer b.Close()

	msg, ok, err := b.Lookup("weather")
	if err != nil || !ok || msg != "sunny" {
		t.Fatalf("expected persisted row after reopen: got (%q, %v, %v)", msg, ok, err)
	}
}
