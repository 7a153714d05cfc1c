// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/darkistan/routermaster/internal/logging"
	"github.com/darkistan/routermaster/internal/model"
)

// adminsKey is the reserved top-level key holding administrator IDs.
// It must never be treated as a device.
const adminsKey = "admins"

// deviceRecord mirrors one device entry of the JSON store on disk.
type deviceRecord struct {
	Address        string   `json:"ip"`
	Username       string   `json:"username"`
	SSHPassword    string   `json:"ssh_password"`
	SSHPort        int      `json:"ssh_port,omitempty"`
	ScriptPassword string   `json:"script_password,omitempty"`
	Scripts        []string `json:"scripts"`
	AllowedUsers   []string `json:"allowed_users"`
}

// Store reads and writes the JSON device file. The file maps device
// names to device records, plus the reserved "admins" entry.
type Store struct {
	path string
}

// NewStore returns a store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the full inventory from disk. Entries under the reserved
// admins key become the admin list; malformed device entries are
// skipped with a log line rather than failing the whole load.
func (s *Store) Load() (model.Inventory, error) {
	inv := model.Inventory{Devices: map[string]model.Device{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return inv, fmt.Errorf("read device file %s: %w", s.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return inv, fmt.Errorf("parse device file %s: %w", s.path, err)
	}

	for name, msg := range raw {
		if name == adminsKey {
			if err := json.Unmarshal(msg, &inv.Admins); err != nil {
				logging.Errorf("device file: malformed admins entry: %v", err)
			}
			continue
		}
		var rec deviceRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			logging.Errorf("device file: skipping malformed entry %q: %v", name, err)
			continue
		}
		inv.Devices[name] = recordToDevice(name, rec)
	}

	return inv, nil
}

// Save writes the full inventory back to disk, preserving the on-disk
// schema. The file may contain SSH credentials, so it is written 0600.
func (s *Store) Save(inv model.Inventory) error {
	doc := make(map[string]any, len(inv.Devices)+1)
	for name, d := range inv.Devices {
		doc[name] = deviceToRecord(d)
	}
	if inv.Admins != nil {
		doc[adminsKey] = inv.Admins
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode device file: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write device file %s: %w", s.path, err)
	}
	return nil
}

func recordToDevice(name string, rec deviceRecord) model.Device {
	port := rec.SSHPort
	if port == 0 {
		port = 22
	}
	return model.Device{
		Name:           name,
		Address:        rec.Address,
		SSHUsername:    rec.Username,
		SSHPassword:    rec.SSHPassword,
		SSHPort:        port,
		ScriptPassword: rec.ScriptPassword,
		Scripts:        rec.Scripts,
		AllowedUsers:   rec.AllowedUsers,
	}
}

func deviceToRecord(d model.Device) deviceRecord {
	return deviceRecord{
		Address:        d.Address,
		Username:       d.SSHUsername,
		SSHPassword:    d.SSHPassword,
		SSHPort:        d.SSHPort,
		ScriptPassword: d.ScriptPassword,
		Scripts:        d.Scripts,
		AllowedUsers:   d.AllowedUsers,
	}
}

// sortedNames returns the device names of an inventory in stable order.
func sortedNames(devices map[string]model.Device) []string {
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
