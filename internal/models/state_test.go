package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStateManager_LoadNonExistent(t *testing.T) {
	manager := NewStateManager(t.TempDir(), nil)

	state, err := manager.Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(state.Items) != 0 {
		t.Errorf("Expected empty inventory, got %d items", len(state.Items))
	}
}

func TestStateManager_PutGetRemove(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")
	manager := NewStateManager(stateDir, nil)

	entries := []Entry{
		{Variant: "tiny", Filename: "ggml-tiny.bin", Size: 10, Digest: "aa", InstalledAt: time.Now().UTC()},
		{Variant: "base", Filename: "ggml-base.bin", Size: 20, Digest: "bb", InstalledAt: time.Now().UTC()},
	}
	for _, e := range entries {
		if err := manager.Put(e); err != nil {
			t.Fatalf("Put(%s) failed: %v", e.Variant, err)
		}
	}

	// Replacing keeps a single entry per variant
	updated := entries[0]
	updated.Digest = "cc"
	if err := manager.Put(updated); err != nil {
		t.Fatalf("Put(update) failed: %v", err)
	}

	got, err := manager.Get("tiny")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Digest != "cc" {
		t.Errorf("Expected updated digest, got %q", got.Digest)
	}

	state, err := manager.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(state.Items))
	}
	if state.Items[0].Variant != "base" {
		t.Errorf("Expected items sorted by variant, got %q first", state.Items[0].Variant)
	}

	if err := manager.Remove("tiny"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := manager.Get("tiny"); !errors.Is(err, ErrNotRecorded) {
		t.Errorf("Expected ErrNotRecorded after remove, got %v", err)
	}
	if err := manager.Remove("never-there"); err != nil {
		t.Errorf("Removing an unknown variant should succeed, got %v", err)
	}
}

func TestStateManager_CorruptFile(t *testing.T) {
	stateDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(stateDir, StateFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStateManager(stateDir, nil).Load(); err == nil {
		t.Error("Expected error for corrupt state file")
	}
}

func TestStateManager_GetStats(t *testing.T) {
	manager := NewStateManager(t.TempDir(), nil)
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	_ = manager.Put(Entry{Variant: "tiny", Size: 100, InstalledAt: older})
	_ = manager.Put(Entry{Variant: "base", Size: 250, InstalledAt: newer})

	stats, err := manager.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 2 || stats.TotalSize != 350 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Newest == nil || stats.Newest.Variant != "base" {
		t.Errorf("Expected newest to be base, got %+v", stats.Newest)
	}
}
