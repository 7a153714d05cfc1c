// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package flow drives the end-to-end interaction: device selection,
// script selection, credential gating, remote execution, notification,
// and the admin access-management branch. It is transport-agnostic;
// the Telegram adapter feeds it Events and receives Messenger calls.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/darkistan/routermaster/internal/i18n"
	"github.com/darkistan/routermaster/internal/ledger"
	"github.com/darkistan/routermaster/internal/logging"
	"github.com/darkistan/routermaster/internal/registry"
	"github.com/darkistan/routermaster/internal/remote"
	"github.com/darkistan/routermaster/internal/session"
)

// Mode selects how script execution is gated for all users.
type Mode int

const (
	// ModeConfirmation asks for a yes/no reply before running.
	ModeConfirmation Mode = iota
	// ModePassword asks for the device's script password.
	ModePassword
)

// Confirmation vocabulary, matched case-insensitively. Anything outside
// both sets re-prompts without touching session state.
var (
	confirmPositive = []string{"так", "yes", "y", "1", "true"}
	confirmNegative = []string{"ні", "no", "n", "0", "false"}
)

// Audit action names. ActionDenied entries record rejected admin
// operations and executions blocked by a mid-flow revocation.
const (
	ActionRunScript     = "RUN_SCRIPT"
	ActionDenied        = "ACCESS_DENIED"
	ActionGrantAccess   = "GRANT_ACCESS"
	ActionRevokeAccess  = "REVOKE_ACCESS"
	ActionAccessRequest = "ACCESS_REQUEST"
)

// Config wires a Coordinator. Registry, Ledger, Sessions, Runner and
// Messenger are required; Notifier and Audit may be nil (no-ops).
type Config struct {
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Sessions *session.Manager
	Runner   ScriptRunner
	Msg      Messenger
	Notifier Notifier
	Audit    AuditWriter

	Mode        Mode
	ExecTimeout time.Duration
}

// Coordinator validates access, advances per-user session state, and
// invokes the remote execution and notification collaborators.
type Coordinator struct {
	reg      *registry.Registry
	ledger   *ledger.Ledger
	sessions *session.Manager
	runner   ScriptRunner
	msg      Messenger
	notifier Notifier
	audit    AuditWriter

	mode        Mode
	execTimeout time.Duration
	now         func() time.Time // test seam
}

// New returns a coordinator over the given collaborators.
func New(cfg Config) *Coordinator {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	c := &Coordinator{
		reg:         cfg.Registry,
		ledger:      cfg.Ledger,
		sessions:    cfg.Sessions,
		runner:      cfg.Runner,
		msg:         cfg.Msg,
		notifier:    cfg.Notifier,
		audit:       cfg.Audit,
		mode:        cfg.Mode,
		execTimeout: cfg.ExecTimeout,
		now:         time.Now,
	}
	if c.notifier == nil {
		c.notifier = noopNotifier{}
	}
	if c.audit == nil {
		c.audit = noopAudit{}
	}
	return c
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}

type noopAudit struct{}

func (noopAudit) LogAction(string, string, string) error { return nil }

// HandleEvent processes one inbound chat event. Events for the same
// user are serialized on a per-user mutex so a rapid double-tap cannot
// interleave two flows.
func (c *Coordinator) HandleEvent(ctx context.Context, ev Event) {
	uid := strconv.FormatInt(ev.UserID, 10)
	unlock := c.sessions.Acquire(uid)
	defer unlock()

	switch ev.Kind {
	case KindCommand:
		c.handleCommand(ev, uid)
	case KindCallback:
		c.handleCallback(ctx, ev, uid)
	case KindText:
		c.handleText(ctx, ev, uid)
	}
}

func (c *Coordinator) handleCommand(ev Event, uid string) {
	switch ev.Command {
	case "start":
		c.send(ev.ChatID, i18n.T("bot.start"), nil)
		logging.Infof("flow: user %s (%s) started interaction", ev.Username, uid)
	case "help":
		c.send(ev.ChatID, i18n.T("bot.help"), nil)
	case "id":
		c.notifier.Notify(fmt.Sprintf(i18n.T("notify.access_request"),
			ev.FirstName, ev.LastName, ev.Username, uid))
		_ = c.audit.LogAction(uid, ActionAccessRequest, fmt.Sprintf("username: %s", ev.Username))
		c.send(ev.ChatID, i18n.T("bot.access_request_sent"), nil)
	case "run_script":
		logging.Infof("flow: user %s requested script run", ev.Username)
		devices := c.reg.DevicesVisibleTo(uid)
		if len(devices) == 0 {
			c.send(ev.ChatID, i18n.T("bot.no_access"), nil)
			logging.Infof("flow: user %s has no device access", ev.Username)
			return
		}
		c.sessions.EnterAwaitingDevice(uid)
		c.send(ev.ChatID, i18n.T("bot.select_router"), deviceKeyboard(devices))
	case "access":
		if !c.requireAdmin(ev, uid, "command /access") {
			return
		}
		c.send(ev.ChatID, i18n.T("access.menu_title"), accessMenuKeyboard(c.deviceSummaries()))
	case "user":
		if !c.requireAdmin(ev, uid, "command /user") {
			return
		}
		c.showUserAccess(ev)
	case "cancel":
		c.sessions.Clear(uid)
		c.send(ev.ChatID, i18n.T("bot.cancelled"), nil)
	default:
		logging.Debugf("flow: ignoring unknown command %q from %s", ev.Command, uid)
	}
}

func (c *Coordinator) handleCallback(ctx context.Context, ev Event, uid string) {
	_ = c.msg.AnswerCallback(ev.CallbackID, "")

	switch ev.Action.Verb {
	case VerbSelectDevice:
		c.selectDevice(ev, uid, ev.Action.Subject)
	case VerbSelectScript:
		c.selectScript(ev, uid, ev.Action.Subject, ev.Action.Target)
	case VerbAccessMenu:
		if !c.requireAdmin(ev, uid, "access menu") {
			return
		}
		c.edit(ev, i18n.T("access.menu_title"), accessMenuKeyboard(c.deviceSummaries()))
	case VerbAccessManage:
		if !c.requireAdmin(ev, uid, "access manage") {
			return
		}
		c.showDevicePanel(ev, ev.Action.Subject)
	case VerbAccessUsers:
		if !c.requireAdmin(ev, uid, "access users") {
			return
		}
		c.showDeviceUsers(ev, ev.Action.Subject)
	case VerbAccessAddUser:
		if !c.requireAdmin(ev, uid, "access add user") {
			return
		}
		c.sessions.EnterAwaitingUserID(uid, ev.Action.Subject, session.OpAdd)
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("access.enter_user_id_add"), ev.Action.Subject), nil)
	case VerbAccessRemoveUser:
		if !c.requireAdmin(ev, uid, "access remove user") {
			return
		}
		c.sessions.EnterAwaitingUserID(uid, ev.Action.Subject, session.OpRemove)
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("access.enter_user_id_remove"), ev.Action.Subject), nil)
	case VerbAccessRefresh:
		if !c.requireAdmin(ev, uid, "access refresh") {
			return
		}
		c.reg.Invalidate()
		c.send(ev.ChatID, i18n.T("access.cache_refreshed"), nil)
	case VerbAccessStats:
		if !c.requireAdmin(ev, uid, "access stats") {
			return
		}
		c.showStats(ev)
	default:
		logging.Debugf("flow: unparseable callback from %s", uid)
	}
}

// selectDevice handles the first selection step. Access is checked here
// and re-checked at execution time in case it is revoked mid-flow.
func (c *Coordinator) selectDevice(ev Event, uid, device string) {
	if !c.reg.UserHasAccess(uid, device) {
		c.send(ev.ChatID, i18n.T("bot.router_not_found"), nil)
		logging.Warnf("flow: device %q not found or user %s has no access", device, uid)
		c.sessions.Clear(uid)
		return
	}
	logging.Infof("flow: user %s selected device %s", ev.Username, device)
	c.sessions.EnterAwaitingScript(uid, device)
	c.send(ev.ChatID, fmt.Sprintf(i18n.T("bot.select_script"), device),
		scriptKeyboard(device, c.reg.ScriptsOf(device)))
}

func (c *Coordinator) selectScript(ev Event, uid, device, script string) {
	if !c.reg.UserHasAccess(uid, device) {
		c.send(ev.ChatID, i18n.T("bot.router_not_found"), nil)
		c.sessions.Clear(uid)
		return
	}
	d, _ := c.reg.Get(device)
	if !d.HasScript(script) {
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("bot.script_not_found"), script, device), nil)
		c.sessions.Clear(uid)
		return
	}

	if c.mode == ModePassword {
		c.sessions.EnterAwaitingPassword(uid, device, script)
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("bot.password_prompt"), script, device), nil)
		return
	}
	c.sessions.EnterAwaitingConfirmation(uid, device, script)
	c.send(ev.ChatID, fmt.Sprintf(i18n.T("bot.confirmation_prompt"), script, device), nil)
}

func (c *Coordinator) handleText(ctx context.Context, ev Event, uid string) {
	s := c.sessions.Get(uid)
	switch s.Phase {
	case session.AwaitingPassword:
		c.checkPassword(ctx, ev, uid, s)
	case session.AwaitingConfirmation:
		c.checkConfirmation(ctx, ev, uid, s)
	case session.AwaitingUserIDAdd:
		c.applyLedgerEdit(ev, uid, s.Device, session.OpAdd)
	case session.AwaitingUserIDRemove:
		c.applyLedgerEdit(ev, uid, s.Device, session.OpRemove)
	default:
		logging.Debugf("flow: ignoring text from %s in phase %s", uid, s.Phase)
	}
}

// checkPassword gates execution on the device's script password. A
// device without one rejects every input. Mismatches re-prompt in place
// so the user can retry without restarting the flow.
func (c *Coordinator) checkPassword(ctx context.Context, ev Event, uid string, s session.Session) {
	d, ok := c.reg.Get(s.Device)
	if !ok {
		c.send(ev.ChatID, i18n.T("bot.router_not_found"), nil)
		c.sessions.Clear(uid)
		return
	}
	if d.ScriptPassword == "" || ev.Text != d.ScriptPassword {
		c.send(ev.ChatID, i18n.T("bot.wrong_password"), nil)
		logging.Warnf("flow: user %s entered wrong password for script %s", ev.Username, s.Script)
		return
	}
	c.execute(ctx, ev, uid, s.Device, s.Script)
}

func (c *Coordinator) checkConfirmation(ctx context.Context, ev Event, uid string, s session.Session) {
	answer := strings.ToLower(strings.TrimSpace(ev.Text))
	switch {
	case contains(confirmPositive, answer):
		c.execute(ctx, ev, uid, s.Device, s.Script)
	case contains(confirmNegative, answer):
		c.sessions.Clear(uid)
		c.send(ev.ChatID, i18n.T("bot.script_cancelled"), nil)
		logging.Infof("flow: user %s cancelled script %s on %s", ev.Username, s.Script, s.Device)
	default:
		// Unrecognized reply: re-prompt, keep state.
		c.send(ev.ChatID, i18n.T("bot.invalid_response"), nil)
	}
}

// execute runs the selected script. Access is verified once more right
// before running: the session may hold a device the user was revoked
// from since selection.
func (c *Coordinator) execute(ctx context.Context, ev Event, uid, device, script string) {
	if !c.reg.UserHasAccess(uid, device) {
		c.send(ev.ChatID, i18n.T("bot.router_not_found"), nil)
		_ = c.audit.LogAction(uid, ActionDenied,
			fmt.Sprintf("execution of %q on %q after access revocation", script, device))
		c.sessions.Clear(uid)
		return
	}
	conn, ok := c.reg.ConnectionInfoOf(device)
	if !ok {
		c.send(ev.ChatID, i18n.T("bot.router_not_found"), nil)
		c.sessions.Clear(uid)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()
	out, err := c.runner.Run(runCtx, conn, script)

	body := out
	if err != nil {
		body = c.describeFailure(conn.Address, conn.Port, err)
	}
	c.send(ev.ChatID, fmt.Sprintf(i18n.T("bot.script_result"), script, body), nil)

	when := c.now().Format("2006-01-02 15:04:05")
	c.notifier.Notify(fmt.Sprintf(i18n.T("notify.script_status"), when, ev.Username, device, script))
	details := fmt.Sprintf("script: %q, device: %q, result: %s", script, device, remote.ClassOf(err))
	if err == nil {
		details = fmt.Sprintf("script: %q, device: %q, result: ok", script, device)
	}
	_ = c.audit.LogAction(uid, ActionRunScript, details)
	logging.Infof("flow: script %q executed on %q by %s at %s", script, device, ev.Username, when)

	c.sessions.Clear(uid)
}

// describeFailure maps a classified execution error to user-facing text.
func (c *Coordinator) describeFailure(address string, port int, err error) string {
	switch remote.ClassOf(err) {
	case remote.ClassAuth:
		return i18n.T("exec.auth_failed")
	case remote.ClassUnreachable:
		return fmt.Sprintf(i18n.T("exec.unreachable"), address, port)
	case remote.ClassTransport:
		return fmt.Sprintf(i18n.T("exec.ssh_error"), err)
	}
	return fmt.Sprintf(i18n.T("exec.unknown_error"), err)
}

// applyLedgerEdit consumes the typed user ID for a pending add/remove.
// Any terminal outcome, including a validation failure, clears the
// session; only the credential prompts retry in place.
func (c *Coordinator) applyLedgerEdit(ev Event, uid, device string, op session.LedgerOp) {
	defer c.sessions.Clear(uid)

	target := strings.TrimSpace(ev.Text)
	if !ledger.ValidateUserID(target) {
		c.send(ev.ChatID, i18n.T("access.invalid_user_id"), nil)
		return
	}

	var err error
	var okMsg, action string
	if op == session.OpAdd {
		err = c.ledger.AddUser(device, target)
		okMsg, action = "access.user_added", ActionGrantAccess
	} else {
		err = c.ledger.RemoveUser(device, target)
		okMsg, action = "access.user_removed", ActionRevokeAccess
	}

	switch {
	case err == nil:
		c.send(ev.ChatID, fmt.Sprintf(i18n.T(okMsg), target, device), nil)
		_ = c.audit.LogAction(uid, action, fmt.Sprintf("user: %s, device: %q", target, device))
	case isLedgerConflict(err, op):
		id := "access.user_exists"
		if op == session.OpRemove {
			id = "access.user_missing"
		}
		c.send(ev.ChatID, fmt.Sprintf(i18n.T(id), target, device), nil)
	case errors.Is(err, ledger.ErrDeviceNotFound):
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("access.device_missing"), device), nil)
	default:
		c.send(ev.ChatID, i18n.T("access.persist_failed"), nil)
		logging.Errorf("flow: ledger edit failed: %v", err)
	}
}

// showUserAccess answers "/user <id>" with the devices that user may
// run scripts on.
func (c *Coordinator) showUserAccess(ev Event) {
	target := strings.TrimSpace(ev.Text)
	if !ledger.ValidateUserID(target) {
		c.send(ev.ChatID, i18n.T("access.user_usage"), nil)
		return
	}
	devices := c.reg.DevicesVisibleTo(target)
	if len(devices) == 0 {
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("access.user_devices_none"), target), nil)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, i18n.T("access.user_devices_header"), target)
	for _, d := range devices {
		fmt.Fprintf(&b, "\n• %s", d)
	}
	c.send(ev.ChatID, b.String(), nil)
}

func (c *Coordinator) showDevicePanel(ev Event, device string) {
	d, ok := c.reg.Get(device)
	if !ok {
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("access.device_missing"), device), nil)
		return
	}
	c.edit(ev, fmt.Sprintf(i18n.T("access.panel_title"), device),
		accessDeviceKeyboard(device, len(d.AllowedUsers)))
}

func (c *Coordinator) showDeviceUsers(ev Event, device string) {
	users, err := c.ledger.UsersOf(device)
	if err != nil {
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("access.device_missing"), device), nil)
		return
	}
	if len(users) == 0 {
		c.send(ev.ChatID, fmt.Sprintf(i18n.T("access.users_none"), device), nil)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, i18n.T("access.users_header"), device)
	for _, u := range users {
		fmt.Fprintf(&b, "\n• %s", u)
	}
	c.send(ev.ChatID, b.String(), nil)
}

func (c *Coordinator) showStats(ev Event) {
	summaries := c.deviceSummaries()
	var b strings.Builder
	fmt.Fprintf(&b, i18n.T("access.stats_header"), len(summaries))
	for _, d := range summaries {
		b.WriteString("\n")
		fmt.Fprintf(&b, i18n.T("access.stats_line"), d.name, d.users)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, i18n.T("access.stats_sessions"), c.sessions.ActiveCount())
	c.send(ev.ChatID, b.String(), nil)
}

// deviceSummaries returns name/address/user-count rows sorted by name.
func (c *Coordinator) deviceSummaries() []deviceSummary {
	devices := c.reg.GetAll(false)
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]deviceSummary, 0, len(names))
	for _, name := range names {
		d := devices[name]
		out = append(out, deviceSummary{name: name, address: d.Address, users: len(d.AllowedUsers)})
	}
	return out
}

// requireAdmin rejects non-admin use of admin surfaces, with a denial
// message and a durable security audit entry.
func (c *Coordinator) requireAdmin(ev Event, uid, what string) bool {
	if c.reg.IsAdmin(uid) {
		return true
	}
	c.send(ev.ChatID, i18n.T("bot.admin_only"), nil)
	logging.Warnf("flow: SECURITY user %s (%s) denied admin operation: %s", ev.Username, uid, what)
	_ = c.audit.LogAction(uid, ActionDenied, what)
	return false
}

func (c *Coordinator) send(chatID int64, text string, kb *Keyboard) {
	if err := c.msg.SendMessage(chatID, text, kb); err != nil {
		logging.Errorf("flow: send failed: %v", err)
	}
}

// edit updates the originating message in place for menu navigation,
// falling back to a plain send when no message reference exists.
func (c *Coordinator) edit(ev Event, text string, kb *Keyboard) {
	if ev.MessageID == 0 {
		c.send(ev.ChatID, text, kb)
		return
	}
	if err := c.msg.EditMessage(ev.ChatID, ev.MessageID, text, kb); err != nil {
		logging.Errorf("flow: edit failed: %v", err)
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func isLedgerConflict(err error, op session.LedgerOp) bool {
	if op == session.OpAdd {
		return errors.Is(err, ledger.ErrAlreadyPresent)
	}
	return errors.Is(err, ledger.ErrNotPresent)
}
