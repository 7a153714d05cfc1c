// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

func TestLoadDefaults(t *testing.T) {
	resetViper()
	defer resetViper()

	// Point the search path away from any real config file.
	t.Chdir(t.TempDir())

	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DevicesFile != "./routers.json" {
		t.Fatalf("devices_file = %q", cfg.DevicesFile)
	}
	if cfg.ScriptMode != ModeConfirmation {
		t.Fatalf("script_mode = %q", cfg.ScriptMode)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("session_ttl = %s", cfg.SessionTTL)
	}
	if cfg.ExecTimeout != 30*time.Second {
		t.Fatalf("exec_timeout = %s", cfg.ExecTimeout)
	}
	if cfg.Language != "en" {
		t.Fatalf("language = %q", cfg.Language)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	resetViper()
	defer resetViper()

	path := filepath.Join(t.TempDir(), "routermaster.yaml")
	content := `bot_token: "123:abc"
devices_file: "/etc/routermaster/routers.json"
language: "uk"
script_mode: "password"
debug: true
admin1:
  token: "456:def"
  chat_id: 111222333
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BotToken != "123:abc" {
		t.Fatalf("bot_token = %q", cfg.BotToken)
	}
	if cfg.DevicesFile != "/etc/routermaster/routers.json" {
		t.Fatalf("devices_file = %q", cfg.DevicesFile)
	}
	if cfg.Language != "uk" || cfg.ScriptMode != ModePassword || !cfg.Debug {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.Admin1.Enabled || cfg.Admin1.ChatID != 111222333 || cfg.Admin1.Token != "456:def" {
		t.Fatalf("admin1 = %+v", cfg.Admin1)
	}
	if cfg.Admin2.Enabled {
		t.Fatalf("admin2 should default to disabled")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	resetViper()
	defer resetViper()

	t.Chdir(t.TempDir())
	t.Setenv("ROUTERMASTER_BOT_TOKEN", "env:token")
	t.Setenv("ROUTERMASTER_SCRIPT_MODE", "password")

	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BotToken != "env:token" {
		t.Fatalf("bot_token = %q", cfg.BotToken)
	}
	if cfg.ScriptMode != ModePassword {
		t.Fatalf("script_mode = %q", cfg.ScriptMode)
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	resetViper()
	defer resetViper()

	t.Chdir(t.TempDir())
	t.Setenv("ROUTERMASTER_SCRIPT_MODE", "yolo")

	_, err := Load(nil, "")
	if err == nil || !strings.Contains(err.Error(), "script_mode") {
		t.Fatalf("expected script_mode error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		DevicesFile: "./routers.json",
		AuditDB:     "./routermaster.db",
		ScriptMode:  ModeConfirmation,
		SessionTTL:  time.Minute,
		ExecTimeout: time.Second,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []func(*Config){
		func(c *Config) { c.ScriptMode = "" },
		func(c *Config) { c.DevicesFile = "" },
		func(c *Config) { c.AuditDB = "" },
		func(c *Config) { c.SessionTTL = 0 },
		func(c *Config) { c.ExecTimeout = -time.Second },
	}
	for i, mutate := range cases {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}
}
