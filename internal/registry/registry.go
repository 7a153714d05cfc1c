// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package registry owns the catalog of managed routers. It loads the
// JSON device file through a time-bounded read cache and answers access
// questions for the rest of the application. Load failures never
// propagate to callers; they degrade to an empty catalog plus a log
// line, matching the best-effort nature of the bot.
package registry

import (
	"sync"
	"time"

	"github.com/darkistan/routermaster/internal/logging"
	"github.com/darkistan/routermaster/internal/model"
)

// DefaultTTL bounds how long a loaded snapshot is trusted before the
// device file is re-read.
const DefaultTTL = 300 * time.Second

// Registry is a TTL-cached view over the device store. It is safe for
// concurrent use; readers always see a fully loaded snapshot.
type Registry struct {
	store *Store
	ttl   time.Duration

	mu       sync.RWMutex
	inv      model.Inventory
	loadedAt time.Time

	now func() time.Time // test seam
}

// New returns a registry over the given store with the default TTL.
func New(store *Store) *Registry {
	return NewWithTTL(store, DefaultTTL)
}

// NewWithTTL returns a registry with an explicit cache TTL.
func NewWithTTL(store *Store, ttl time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl, now: time.Now}
}

// snapshot returns the current inventory, reloading from the store when
// the cache is stale or force is set.
func (r *Registry) snapshot(force bool) model.Inventory {
	r.mu.RLock()
	if !force && !r.loadedAt.IsZero() && r.now().Sub(r.loadedAt) < r.ttl {
		inv := r.inv
		r.mu.RUnlock()
		return inv
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have reloaded while we waited for the lock.
	if !force && !r.loadedAt.IsZero() && r.now().Sub(r.loadedAt) < r.ttl {
		return r.inv
	}

	inv, err := r.store.Load()
	if err != nil {
		logging.Errorf("registry: reload failed, serving empty catalog: %v", err)
	}
	r.inv = inv
	r.loadedAt = r.now()
	return r.inv
}

// GetAll returns the device catalog keyed by name. With force set, the
// cache is bypassed and the store re-read.
func (r *Registry) GetAll(force bool) map[string]model.Device {
	inv := r.snapshot(force)
	out := make(map[string]model.Device, len(inv.Devices))
	for name, d := range inv.Devices {
		out[name] = d
	}
	return out
}

// Get returns a single device by name.
func (r *Registry) Get(name string) (model.Device, bool) {
	inv := r.snapshot(false)
	d, ok := inv.Devices[name]
	return d, ok
}

// UserHasAccess reports whether the user is on the device's allow-list.
// An absent device yields false.
func (r *Registry) UserHasAccess(userID, deviceName string) bool {
	d, ok := r.Get(deviceName)
	if !ok {
		return false
	}
	return d.HasUser(userID)
}

// DevicesVisibleTo returns the sorted names of devices the user may use.
func (r *Registry) DevicesVisibleTo(userID string) []string {
	inv := r.snapshot(false)
	var visible []string
	for _, name := range sortedNames(inv.Devices) {
		if inv.Devices[name].HasUser(userID) {
			visible = append(visible, name)
		}
	}
	return visible
}

// ScriptsOf returns the script catalog of a device, nil when absent.
func (r *Registry) ScriptsOf(deviceName string) []string {
	d, ok := r.Get(deviceName)
	if !ok {
		return nil
	}
	return d.Scripts
}

// ConnectionInfoOf returns SSH connection details for a device.
func (r *Registry) ConnectionInfoOf(deviceName string) (model.ConnectionInfo, bool) {
	d, ok := r.Get(deviceName)
	if !ok {
		return model.ConnectionInfo{}, false
	}
	return model.ConnectionInfo{
		Address:  d.Address,
		Username: d.SSHUsername,
		Password: d.SSHPassword,
		Port:     d.SSHPort,
	}, true
}

// IsAdmin reports whether the user is on the reserved admin list.
func (r *Registry) IsAdmin(userID string) bool {
	inv := r.snapshot(false)
	for _, id := range inv.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// Admins returns the configured administrator IDs.
func (r *Registry) Admins() []string {
	inv := r.snapshot(false)
	out := make([]string, len(inv.Admins))
	copy(out, inv.Admins)
	return out
}

// Invalidate drops the cached snapshot; the next read reloads the store.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.inv = model.Inventory{Devices: map[string]model.Device{}}
	r.loadedAt = time.Time{}
	r.mu.Unlock()
	logging.Debugf("registry: cache invalidated")
}
