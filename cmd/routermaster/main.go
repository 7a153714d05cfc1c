// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for Routermaster using
// Cobra. Running without a subcommand starts the Telegram bot; the
// audit subcommand prints the recorded audit trail and exits.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/darkistan/routermaster/internal/audit"
	"github.com/darkistan/routermaster/internal/bot"
	"github.com/darkistan/routermaster/internal/config"
	"github.com/darkistan/routermaster/internal/flow"
	"github.com/darkistan/routermaster/internal/i18n"
	"github.com/darkistan/routermaster/internal/ledger"
	"github.com/darkistan/routermaster/internal/logging"
	"github.com/darkistan/routermaster/internal/notify"
	"github.com/darkistan/routermaster/internal/registry"
	"github.com/darkistan/routermaster/internal/remote"
	"github.com/darkistan/routermaster/internal/session"
)

var version = "dev" // set by the linker

var cfgFile string
var cfg config.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routermaster",
		Short: "Routermaster is a Telegram gateway for running router scripts over SSH.",
		Long: `Routermaster bridges a Telegram bot and a fleet of routers.
Authorized users pick a router and a script from inline keyboards;
after a confirmation step the script runs over SSH and the output
comes back into the chat. A JSON access list decides who sees what,
and every execution and access change lands in a local audit log.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cmd, cfgFile)
			if err != nil {
				return err
			}
			i18n.Init(cfg.Language)
			logging.SetDebug(cfg.Debug)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newScriptCmd())
	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is routermaster.yaml in the config dir, /etc/routermaster, or .)")
	cmd.PersistentFlags().String("devices_file", "./routers.json", "path to the router access list")
	cmd.PersistentFlags().String("audit_db", "./routermaster.db", "path to the audit log database")
	cmd.PersistentFlags().String("language", "en", `bot language ("en", "uk")`)
	cmd.PersistentFlags().String("script_mode", config.ModeConfirmation, `execution gate ("password", "confirmation")`)
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	return cmd
}

// runBot wires the full pipeline and polls Telegram until interrupted.
func runBot(parent context.Context) error {
	if cfg.BotToken == "" {
		return fmt.Errorf("bot_token is not set (config file or ROUTERMASTER_BOT_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(registry.NewStore(cfg.DevicesFile))
	led := ledger.New(registry.NewStore(cfg.DevicesFile), reg)

	auditStore, err := audit.Open(cfg.AuditDB)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	sessions := session.NewManager()
	go sessions.RunSweeper(ctx, cfg.SessionTTL, cfg.SessionTTL/10)

	notifier := notify.New(
		notify.Channel{Token: cfg.Admin1.Token, ChatID: cfg.Admin1.ChatID, Enabled: cfg.Admin1.Enabled},
		notify.Channel{Token: cfg.Admin2.Token, ChatID: cfg.Admin2.ChatID, Enabled: cfg.Admin2.Enabled},
	)

	tg, err := bot.New(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connect bot: %w", err)
	}

	mode := flow.ModeConfirmation
	if cfg.ScriptMode == config.ModePassword {
		mode = flow.ModePassword
	}
	coord := flow.New(flow.Config{
		Msg:         tg,
		Registry:    reg,
		Ledger:      led,
		Sessions:    sessions,
		Runner:      remote.NewRunner(remote.ConnectionConfig{ExecTimeout: cfg.ExecTimeout}),
		Notifier:    notifier,
		Audit:       auditStore,
		Mode:        mode,
		ExecTimeout: cfg.ExecTimeout,
	})

	logging.Infof("routermaster %s starting (mode=%s, devices=%s)", version, cfg.ScriptMode, cfg.DevicesFile)
	if err := tg.Run(ctx, coord); err != nil && ctx.Err() == nil {
		return err
	}
	logging.Infof("routermaster stopped")
	return nil
}

// newScriptCmd edits a device's script catalog from the command line.
// The bot only ever runs scripts; adding and removing catalog entries
// is an operator action done next to the device file itself.
func newScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Edit the script catalog of a router",
	}

	newLedger := func() *ledger.Ledger {
		store := registry.NewStore(cfg.DevicesFile)
		return ledger.New(store, registry.New(store))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <router> <script>",
		Short: "Add a script to a router's catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, script := args[0], args[1]
			if !ledger.ValidateScriptName(script) {
				return fmt.Errorf("invalid script name %q", script)
			}
			if err := newLedger().AddScript(device, script); err != nil {
				return err
			}
			fmt.Printf("script %q added to %s\n", script, device)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <router> <script>",
		Short: "Remove a script from a router's catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, script := args[0], args[1]
			if err := newLedger().RemoveScript(device, script); err != nil {
				return err
			}
			fmt.Printf("script %q removed from %s\n", script, device)
			return nil
		},
	})

	return cmd
}

// newAuditCmd prints the audit trail, newest first.
func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Print the recorded audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := audit.Open(cfg.AuditDB)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Entries()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("audit log is empty")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-14s  user=%s  %s\n", e.Timestamp, e.Action, e.Username, e.Details)
			}
			return nil
		},
	}
}
