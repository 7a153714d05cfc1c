// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package ledger mutates the access-control and script catalog of the
// device store. Every operation is a read-modify-write of the full
// device file; the registry cache is invalidated after each attempt so
// stale snapshots are never served past a mutation.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/darkistan/routermaster/internal/logging"
	"github.com/darkistan/routermaster/internal/model"
	"github.com/darkistan/routermaster/internal/registry"
)

var (
	// ErrDeviceNotFound is returned when the target device is absent.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAlreadyPresent is returned when the entry to add already exists.
	ErrAlreadyPresent = errors.New("entry already present")
	// ErrNotPresent is returned when the entry to remove is missing.
	ErrNotPresent = errors.New("entry not present")
)

// PersistenceError wraps an I/O failure of the backing store.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist device file: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// scriptNameForbidden lists characters rejected in script names. Colon
// is included so callback payloads using ':' as a field separator stay
// unambiguous.
const scriptNameForbidden = `/\:*?"<>|`

// Ledger applies allow-list and script-catalog mutations to the store.
// Writes are serialized so two admins editing concurrently cannot lose
// each other's updates.
type Ledger struct {
	store *registry.Store
	reg   *registry.Registry
	mu    sync.Mutex
}

// New returns a ledger over the given store that invalidates the given
// registry after each mutation.
func New(store *registry.Store, reg *registry.Registry) *Ledger {
	return &Ledger{store: store, reg: reg}
}

// AddUser appends a user to a device's allow-list and persists the file.
func (l *Ledger) AddUser(deviceName, userID string) error {
	err := l.mutate(deviceName, func(d *model.Device) error {
		if d.HasUser(userID) {
			return ErrAlreadyPresent
		}
		d.AllowedUsers = append(d.AllowedUsers, userID)
		return nil
	})
	if err == nil {
		logging.Infof("ledger: user %s added to device %s", userID, deviceName)
	}
	return err
}

// RemoveUser removes a user from a device's allow-list and persists the file.
func (l *Ledger) RemoveUser(deviceName, userID string) error {
	err := l.mutate(deviceName, func(d *model.Device) error {
		idx := -1
		for i, u := range d.AllowedUsers {
			if u == userID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotPresent
		}
		d.AllowedUsers = append(d.AllowedUsers[:idx], d.AllowedUsers[idx+1:]...)
		return nil
	})
	if err == nil {
		logging.Infof("ledger: user %s removed from device %s", userID, deviceName)
	}
	return err
}

// AddScript appends a script to a device's catalog and persists the file.
func (l *Ledger) AddScript(deviceName, script string) error {
	err := l.mutate(deviceName, func(d *model.Device) error {
		if d.HasScript(script) {
			return ErrAlreadyPresent
		}
		d.Scripts = append(d.Scripts, script)
		return nil
	})
	if err == nil {
		logging.Infof("ledger: script %q added to device %s", script, deviceName)
	}
	return err
}

// RemoveScript removes a script from a device's catalog and persists the file.
func (l *Ledger) RemoveScript(deviceName, script string) error {
	err := l.mutate(deviceName, func(d *model.Device) error {
		idx := -1
		for i, s := range d.Scripts {
			if s == script {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotPresent
		}
		d.Scripts = append(d.Scripts[:idx], d.Scripts[idx+1:]...)
		return nil
	})
	if err == nil {
		logging.Infof("ledger: script %q removed from device %s", script, deviceName)
	}
	return err
}

// UsersOf returns the current allow-list of a device straight from the
// store, bypassing the registry cache.
func (l *Ledger) UsersOf(deviceName string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, err := l.store.Load()
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	d, ok := inv.Devices[deviceName]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.AllowedUsers, nil
}

// mutate loads the full inventory, applies fn to the named device, and
// writes the result back. The registry cache is invalidated whether or
// not the write succeeds: the mutated inventory is private to this call,
// so a failed write only forces a harmless reload of the unchanged file.
func (l *Ledger) mutate(deviceName string, fn func(*model.Device) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.reg.Invalidate()

	inv, err := l.store.Load()
	if err != nil {
		return &PersistenceError{Err: err}
	}

	d, ok := inv.Devices[deviceName]
	if !ok {
		return ErrDeviceNotFound
	}
	if err := fn(&d); err != nil {
		return err
	}
	inv.Devices[deviceName] = d

	if err := l.store.Save(inv); err != nil {
		logging.Errorf("ledger: %v", err)
		return &PersistenceError{Err: err}
	}
	return nil
}

// ValidateUserID reports whether s looks like a chat user identifier:
// a purely numeric string of 7 to 10 digits.
func ValidateUserID(s string) bool {
	if len(s) < 7 || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateScriptName reports whether s is usable as a script name:
// non-empty after trimming and free of path and separator characters.
func ValidateScriptName(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, scriptNameForbidden)
}
