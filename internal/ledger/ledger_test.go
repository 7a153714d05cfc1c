// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/darkistan/routermaster/internal/registry"
)

const sampleFile = `{
  "core-rtr": {
    "ip": "10.0.0.1",
    "username": "admin",
    "ssh_password": "secret",
    "scripts": ["reboot"],
    "allowed_users": ["1234567"]
  },
  "admins": ["9876543"]
}`

func newTestLedger(t *testing.T) (*Ledger, *registry.Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routers.json")
	if err := os.WriteFile(path, []byte(sampleFile), 0600); err != nil {
		t.Fatalf("write device file: %v", err)
	}
	store := registry.NewStore(path)
	reg := registry.New(store)
	return New(store, reg), reg, path
}

func TestAddUserPersistsAndInvalidates(t *testing.T) {
	led, reg, _ := newTestLedger(t)

	// Warm the cache so the test proves invalidation, not a cold read.
	if reg.UserHasAccess("7654321", "core-rtr") {
		t.Fatalf("user should not have access yet")
	}

	if err := led.AddUser("core-rtr", "7654321"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if !reg.UserHasAccess("7654321", "core-rtr") {
		t.Fatalf("registry should see the new user immediately")
	}

	users, err := led.UsersOf("core-rtr")
	if err != nil {
		t.Fatalf("users of: %v", err)
	}
	if !reflect.DeepEqual(users, []string{"1234567", "7654321"}) {
		t.Fatalf("users = %v", users)
	}
}

func TestAddUserAlreadyPresent(t *testing.T) {
	led, _, _ := newTestLedger(t)
	if err := led.AddUser("core-rtr", "1234567"); !errors.Is(err, ErrAlreadyPresent) {
		t.Fatalf("expected ErrAlreadyPresent, got %v", err)
	}
}

func TestRemoveUser(t *testing.T) {
	led, reg, _ := newTestLedger(t)
	if err := led.RemoveUser("core-rtr", "1234567"); err != nil {
		t.Fatalf("remove user: %v", err)
	}
	if reg.UserHasAccess("1234567", "core-rtr") {
		t.Fatalf("removed user still has access")
	}
	if err := led.RemoveUser("core-rtr", "1234567"); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("expected ErrNotPresent, got %v", err)
	}
}

func TestMutateUnknownDevice(t *testing.T) {
	led, _, _ := newTestLedger(t)
	if err := led.AddUser("no-such-device", "7654321"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := led.UsersOf("no-such-device"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestScriptCatalogEdits(t *testing.T) {
	led, reg, _ := newTestLedger(t)

	if err := led.AddScript("core-rtr", "backup"); err != nil {
		t.Fatalf("add script: %v", err)
	}
	if err := led.AddScript("core-rtr", "backup"); !errors.Is(err, ErrAlreadyPresent) {
		t.Fatalf("expected ErrAlreadyPresent, got %v", err)
	}
	if got := reg.ScriptsOf("core-rtr"); !reflect.DeepEqual(got, []string{"reboot", "backup"}) {
		t.Fatalf("scripts = %v", got)
	}

	if err := led.RemoveScript("core-rtr", "reboot"); err != nil {
		t.Fatalf("remove script: %v", err)
	}
	if err := led.RemoveScript("core-rtr", "reboot"); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("expected ErrNotPresent, got %v", err)
	}
	if got := reg.ScriptsOf("core-rtr"); !reflect.DeepEqual(got, []string{"backup"}) {
		t.Fatalf("scripts = %v", got)
	}
}

func TestMutationSurvivesReload(t *testing.T) {
	led, _, path := newTestLedger(t)

	if err := led.AddUser("core-rtr", "7654321"); err != nil {
		t.Fatalf("add user: %v", err)
	}

	// A fresh store over the same file must see the write.
	fresh := registry.NewStore(path)
	inv, err := fresh.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !inv.Devices["core-rtr"].HasUser("7654321") {
		t.Fatalf("mutation did not persist to disk")
	}
	if !reflect.DeepEqual(inv.Admins, []string{"9876543"}) {
		t.Fatalf("admins entry lost on save: %v", inv.Admins)
	}
}

func TestPersistenceErrorOnUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	store := registry.NewStore(path)
	led := New(store, registry.New(store))

	err := led.AddUser("core-rtr", "7654321")
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestValidateUserID(t *testing.T) {
	valid := []string{"1234567", "1234567890"}
	for _, s := range valid {
		if !ValidateUserID(s) {
			t.Errorf("ValidateUserID(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "123456", "12345678901", "12345a7", "-1234567", " 1234567"}
	for _, s := range invalid {
		if ValidateUserID(s) {
			t.Errorf("ValidateUserID(%q) = true, want false", s)
		}
	}
}

func TestValidateScriptName(t *testing.T) {
	valid := []string{"reboot", "health-check", "backup_daily", "  spaced  "}
	for _, s := range valid {
		if !ValidateScriptName(s) {
			t.Errorf("ValidateScriptName(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "   ", "a/b", `a\b`, "a:b", "dir*", "what?", `"quoted"`, "<tag>", "pipe|"}
	for _, s := range invalid {
		if ValidateScriptName(s) {
			t.Errorf("ValidateScriptName(%q) = true, want false", s)
		}
	}
}
