package secrets

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pending_secrets.json")

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := store.Get(1); ok {
		t.Fatalf("new store should have no secret for draw 1")
	}

	secret := bytes.Repeat([]byte{0xab}, 32)
	if err := store.Put(1, secret); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := store.Get(1)
	if !ok || !bytes.Equal(got, secret) {
		t.Fatalf("Get(1) = %x, %v, want %x, true", got, ok, secret)
	}

	if err := store.Delete(1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.Get(1); ok {
		t.Fatalf("secret for draw 1 should be gone after Delete")
	}
}

func TestDeleteAbsentIsNoOp(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(filepath.Join(dir, "pending_secrets.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.Delete(999); err != nil {
		t.Fatalf("Delete of absent id should not error: %v", err)
	}
}

func TestLoadSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pending_secrets.json")

	secret := bytes.Repeat([]byte{0x42}, 32)
	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.Put(7, secret); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.Get(7)
	if !ok || !bytes.Equal(got, secret) {
		t.Fatalf("reloaded Get(7) = %x, %v, want %x, true", got, ok, secret)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(filepath.Join(dir, "does_not_exist", "pending_secrets.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := store.Get(1); ok {
		t.Fatalf("store over a missing file should start empty")
	}
}
