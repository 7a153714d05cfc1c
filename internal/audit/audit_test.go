// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package audit

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLogActionAndEntries(t *testing.T) {
	store := openTestStore(t)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	if err := store.LogAction("1234567", "RUN_SCRIPT", `script: "reboot", device: "core-rtr", result: ok`); err != nil {
		t.Fatalf("log: %v", err)
	}
	clock = clock.Add(time.Minute)
	if err := store.LogAction("5555555", "ACCESS_DENIED", "command /access"); err != nil {
		t.Fatalf("log: %v", err)
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Action != "ACCESS_DENIED" || entries[1].Action != "RUN_SCRIPT" {
		t.Fatalf("order wrong: %+v", entries)
	}
	if entries[1].Username != "1234567" {
		t.Fatalf("username = %q", entries[1].Username)
	}
	if entries[1].Timestamp != "2025-06-01T12:00:00Z" {
		t.Fatalf("timestamp = %q", entries[1].Timestamp)
	}
}

func TestEmptyLog(t *testing.T) {
	store := openTestStore(t)
	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(entries))
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.LogAction("9876543", "GRANT_ACCESS", `user: 7654321, device: "edge-1"`); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()

	entries, err := again.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "GRANT_ACCESS" {
		t.Fatalf("entries after reopen = %+v", entries)
	}
}
