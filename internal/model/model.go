// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the shared value types of Routermaster: managed
// devices, their connection details, and audit log entries.
package model

import "fmt"

// Device represents a managed remote router. The name is the sole
// identity; all mutation is keyed by it.
type Device struct {
	Name           string
	Address        string
	SSHUsername    string
	SSHPassword    string
	SSHPort        int
	ScriptPassword string
	Scripts        []string
	AllowedUsers   []string
}

// String returns the user@address representation.
func (d Device) String() string {
	return fmt.Sprintf("%s@%s", d.SSHUsername, d.Address)
}

// HasUser reports whether the given user identifier is on the
// device's allow-list.
func (d Device) HasUser(userID string) bool {
	for _, u := range d.AllowedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// HasScript reports whether the named script is in the device's catalog.
func (d Device) HasScript(script string) bool {
	for _, s := range d.Scripts {
		if s == script {
			return true
		}
	}
	return false
}

// ConnectionInfo is the subset of a Device needed to open an SSH session.
type ConnectionInfo struct {
	Address  string
	Username string
	Password string
	Port     int
}

// Addr returns the host:port dial target.
func (c ConnectionInfo) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// Inventory is a full snapshot of the backing store: all devices plus
// the reserved admin list.
type Inventory struct {
	Devices map[string]Device
	Admins  []string
}

// AuditLogEntry is a single row of the durable audit trail.
type AuditLogEntry struct {
	ID        int64
	Timestamp string
	Username  string
	Action    string
	Details   string
}
