// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package flow

import "strings"

// Kind distinguishes the three inbound event shapes the transport
// delivers.
type Kind int

const (
	KindCommand Kind = iota
	KindCallback
	KindText
)

// Verb is the closed set of callback actions. Callback payloads are
// parsed once into an Action and matched exhaustively; handlers never
// split raw strings.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbSelectDevice
	VerbSelectScript
	VerbAccessMenu
	VerbAccessManage
	VerbAccessUsers
	VerbAccessAddUser
	VerbAccessRemoveUser
	VerbAccessRefresh
	VerbAccessStats
)

// Action is a parsed callback payload: what to do, to which device,
// and (for script selection) which script.
type Action struct {
	Verb    Verb
	Subject string
	Target  string
}

// Callback payloads are "verb:subject:target" with ':' separators.
// Script names reject ':' at validation time, and the device always
// occupies the subject field, so splitting on the first two colons is
// unambiguous.
const (
	prefixDevice = "device"
	prefixScript = "script"
	prefixAccess = "access"
)

// Encode renders the action back into callback payload form.
func (a Action) Encode() string {
	switch a.Verb {
	case VerbSelectDevice:
		return prefixDevice + ":" + a.Subject
	case VerbSelectScript:
		return prefixScript + ":" + a.Subject + ":" + a.Target
	case VerbAccessMenu:
		return prefixAccess + ":menu"
	case VerbAccessManage:
		return prefixAccess + ":manage:" + a.Subject
	case VerbAccessUsers:
		return prefixAccess + ":users:" + a.Subject
	case VerbAccessAddUser:
		return prefixAccess + ":adduser:" + a.Subject
	case VerbAccessRemoveUser:
		return prefixAccess + ":deluser:" + a.Subject
	case VerbAccessRefresh:
		return prefixAccess + ":refresh"
	case VerbAccessStats:
		return prefixAccess + ":stats"
	}
	return ""
}

// ParseAction decodes a callback payload. The bool result is false for
// payloads outside the closed verb set.
func ParseAction(data string) (Action, bool) {
	fields := strings.SplitN(data, ":", 3)
	switch fields[0] {
	case prefixDevice:
		if len(fields) < 2 || fields[1] == "" {
			return Action{}, false
		}
		subject := fields[1]
		if len(fields) == 3 {
			// Device names may themselves contain ':'.
			subject += ":" + fields[2]
		}
		return Action{Verb: VerbSelectDevice, Subject: subject}, true
	case prefixScript:
		if len(fields) != 3 || fields[1] == "" || fields[2] == "" {
			return Action{}, false
		}
		return Action{Verb: VerbSelectScript, Subject: fields[1], Target: fields[2]}, true
	case prefixAccess:
		if len(fields) < 2 {
			return Action{}, false
		}
		sub := ""
		if len(fields) == 3 {
			sub = fields[2]
		}
		switch fields[1] {
		case "menu":
			return Action{Verb: VerbAccessMenu}, true
		case "refresh":
			return Action{Verb: VerbAccessRefresh}, true
		case "stats":
			return Action{Verb: VerbAccessStats}, true
		case "manage":
			if sub == "" {
				return Action{}, false
			}
			return Action{Verb: VerbAccessManage, Subject: sub}, true
		case "users":
			if sub == "" {
				return Action{}, false
			}
			return Action{Verb: VerbAccessUsers, Subject: sub}, true
		case "adduser":
			if sub == "" {
				return Action{}, false
			}
			return Action{Verb: VerbAccessAddUser, Subject: sub}, true
		case "deluser":
			if sub == "" {
				return Action{}, false
			}
			return Action{Verb: VerbAccessRemoveUser, Subject: sub}, true
		}
	}
	return Action{}, false
}

// Event is one inbound chat event, already normalized by the transport
// adapter.
type Event struct {
	Kind       Kind
	UserID     int64
	ChatID     int64
	MessageID  int
	CallbackID string

	Username  string
	FirstName string
	LastName  string

	// Command is set for KindCommand (without the leading slash).
	Command string
	// Action is set for KindCallback.
	Action Action
	// Text holds the message body for KindText, or the command
	// arguments for KindCommand.
	Text string
}
