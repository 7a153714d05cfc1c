// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package flow

import (
	"context"

	"github.com/darkistan/routermaster/internal/model"
)

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Keyboard is a transport-neutral inline keyboard: rows of buttons.
type Keyboard struct {
	Rows [][]Button
}

// AddRow appends one row of buttons.
func (k *Keyboard) AddRow(buttons ...Button) {
	k.Rows = append(k.Rows, buttons)
}

// Empty reports whether the keyboard has no buttons.
func (k *Keyboard) Empty() bool {
	return k == nil || len(k.Rows) == 0
}

// Messenger is the outbound side of the chat transport. EditMessage
// implementations must swallow "content unchanged" failures and fall
// back to SendMessage on any other edit failure.
type Messenger interface {
	SendMessage(chatID int64, text string, kb *Keyboard) error
	EditMessage(chatID int64, messageID int, text string, kb *Keyboard) error
	AnswerCallback(callbackID, text string) error
}

// ScriptRunner executes a named script on a remote device. The returned
// error, when non-nil, carries a remote.ErrorClass.
type ScriptRunner interface {
	Run(ctx context.Context, conn model.ConnectionInfo, script string) (string, error)
}

// Notifier fans a message out to the configured admin channels.
// Delivery is best-effort; failures are logged, never surfaced.
type Notifier interface {
	Notify(text string)
}

// AuditWriter records durable audit entries. Security-relevant denials
// go through the same writer as operational entries, under distinct
// action names.
type AuditWriter interface {
	LogAction(username, action, details string) error
}
