// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package session tracks the per-user interaction state of multi-step
// flows: picking a device, picking a script, answering the credential
// prompt, or typing a user ID for an admin edit. State is in-memory
// only and lost on restart; that is an accepted limitation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/darkistan/routermaster/internal/logging"
)

// Phase is the current step of a user's flow.
type Phase int

const (
	Idle Phase = iota
	AwaitingDevice
	AwaitingScript
	AwaitingPassword
	AwaitingConfirmation
	AwaitingUserIDAdd
	AwaitingUserIDRemove
)

// String returns a short name for logging.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingDevice:
		return "awaiting_device"
	case AwaitingScript:
		return "awaiting_script"
	case AwaitingPassword:
		return "awaiting_password"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case AwaitingUserIDAdd:
		return "awaiting_user_id_add"
	case AwaitingUserIDRemove:
		return "awaiting_user_id_remove"
	}
	return "unknown"
}

// LedgerOp selects the pending admin edit for AwaitingUserID phases.
type LedgerOp int

const (
	OpAdd LedgerOp = iota
	OpRemove
)

// Session holds the in-flight selections of one user. At most one phase
// is active per user; entering a new phase overwrites the previous one.
type Session struct {
	Phase   Phase
	Device  string
	Script  string
	touched time.Time
}

// Manager owns all user sessions plus a per-user mutex so concurrent
// events for the same user (rapid double-taps) are serialized instead
// of racing. Different users touch disjoint keys and never contend.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex

	now func() time.Time // test seam
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// Acquire locks the per-user mutex and returns the unlock function.
// Callers must hold the lock for the duration of event handling.
func (m *Manager) Acquire(userID string) func() {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns a copy of the user's session; an unknown user is Idle.
func (m *Manager) Get(userID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return *s
	}
	return Session{Phase: Idle}
}

func (m *Manager) set(userID string, s Session) {
	s.touched = m.now()
	m.mu.Lock()
	m.sessions[userID] = &s
	m.mu.Unlock()
}

// EnterAwaitingDevice puts the user at the device-selection step.
func (m *Manager) EnterAwaitingDevice(userID string) {
	m.set(userID, Session{Phase: AwaitingDevice})
}

// EnterAwaitingScript records the chosen device and moves to script selection.
func (m *Manager) EnterAwaitingScript(userID, device string) {
	m.set(userID, Session{Phase: AwaitingScript, Device: device})
}

// EnterAwaitingPassword records device and script and waits for the
// script password.
func (m *Manager) EnterAwaitingPassword(userID, device, script string) {
	m.set(userID, Session{Phase: AwaitingPassword, Device: device, Script: script})
}

// EnterAwaitingConfirmation records device and script and waits for a
// yes/no reply.
func (m *Manager) EnterAwaitingConfirmation(userID, device, script string) {
	m.set(userID, Session{Phase: AwaitingConfirmation, Device: device, Script: script})
}

// EnterAwaitingUserID starts the admin ledger-edit branch for a device.
func (m *Manager) EnterAwaitingUserID(userID, device string, op LedgerOp) {
	phase := AwaitingUserIDAdd
	if op == OpRemove {
		phase = AwaitingUserIDRemove
	}
	m.set(userID, Session{Phase: phase, Device: device})
}

// Clear returns the user to Idle, discarding all stored selections.
func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// ActiveCount returns the number of users with a live session.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle longer than ttl and returns how many were
// removed. Abandoned flows would otherwise pin memory for the lifetime
// of the process.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for userID, s := range m.sessions {
		if s.touched.Before(cutoff) {
			delete(m.sessions, userID)
			evicted++
		}
	}
	return evicted
}

// RunSweeper periodically sweeps stale sessions until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, ttl, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ttl); n > 0 {
				logging.Debugf("session: swept %d stale sessions", n)
			}
		}
	}
}
