// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads runtime configuration through Viper. Values are
// resolved from flags, then ROUTERMASTER_* environment variables, then
// a routermaster.yaml found in the user config dir, /etc/routermaster,
// or the working directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AdminChannel configures one admin notification bot.
type AdminChannel struct {
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
	Enabled bool   `mapstructure:"enabled"`
}

// Config is the full runtime configuration.
type Config struct {
	BotToken    string        `mapstructure:"bot_token"`
	DevicesFile string        `mapstructure:"devices_file"`
	AuditDB     string        `mapstructure:"audit_db"`
	Language    string        `mapstructure:"language"`
	ScriptMode  string        `mapstructure:"script_mode"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	ExecTimeout time.Duration `mapstructure:"exec_timeout"`
	Debug       bool          `mapstructure:"debug"`
	Admin1      AdminChannel  `mapstructure:"admin1"`
	Admin2      AdminChannel  `mapstructure:"admin2"`
}

// Script confirmation modes. In password mode the user must type the
// per-device script password; in confirmation mode a yes/no answer is
// enough.
const (
	ModePassword     = "password"
	ModeConfirmation = "confirmation"
)

const configName = "routermaster"

// Defaults returns the default settings keyed by dotted config path.
func Defaults() map[string]any {
	return map[string]any{
		// Registered with an empty default so AutomaticEnv can see the key.
		"bot_token":    "",
		"devices_file": "./routers.json",
		"audit_db":     "./routermaster.db",
		"language":     "en",
		"script_mode":  ModeConfirmation,
		"session_ttl":  30 * time.Minute,
		"exec_timeout": 30 * time.Second,
		"debug":        false,
	}
}

// Load resolves the configuration. An explicit path (from --config)
// wins over the search path; a missing config file is not an error
// because everything can come from flags and the environment.
func Load(cmd *cobra.Command, explicitPath string) (Config, error) {
	v := viper.GetViper()

	for key, val := range Defaults() {
		v.SetDefault(key, val)
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
		v.AddConfigPath("/etc/" + configName)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(strings.ToUpper(configName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
// The bot token is checked at startup, not here, so offline subcommands
// like the audit viewer still run without one.
func (c Config) Validate() error {
	switch c.ScriptMode {
	case ModePassword, ModeConfirmation:
	default:
		return fmt.Errorf("script_mode must be %q or %q, got %q", ModePassword, ModeConfirmation, c.ScriptMode)
	}
	if c.DevicesFile == "" {
		return fmt.Errorf("devices_file must not be empty")
	}
	if c.AuditDB == "" {
		return fmt.Errorf("audit_db must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.ExecTimeout <= 0 {
		return fmt.Errorf("exec_timeout must be positive, got %s", c.ExecTimeout)
	}
	return nil
}
