package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "value" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := store.Set(ctx, "orders:cl-1", "oid-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	val, ok, err := reopened.Get(ctx, "orders:cl-1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !ok || val != "oid-1" {
		t.Fatalf("expected persisted value, got %q ok=%v", val, ok)
	}
}

func TestUpdatedAtTracksWrites(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, ok, err := store.UpdatedAt(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss for absent key, ok=%v err=%v", ok, err)
	}

	before := time.Now().Add(-time.Second)
	if err := store.Set(ctx, "key", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	at, ok, err := store.UpdatedAt(ctx, "key")
	if err != nil {
		t.Fatalf("updated-at: %v", err)
	}
	if !ok || at.Before(before) {
		t.Fatalf("unexpected updated-at: %v ok=%v", at, ok)
	}
}
