// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package flow

import (
	"fmt"

	"github.com/darkistan/routermaster/internal/i18n"
)

// deviceKeyboard lists the devices a user may run scripts on, one per row.
func deviceKeyboard(names []string) *Keyboard {
	kb := &Keyboard{}
	for _, name := range names {
		kb.AddRow(Button{
			Label: name,
			Data:  Action{Verb: VerbSelectDevice, Subject: name}.Encode(),
		})
	}
	return kb
}

// scriptKeyboard lists the scripts of a device, one per row.
func scriptKeyboard(device string, scripts []string) *Keyboard {
	kb := &Keyboard{}
	for _, script := range scripts {
		kb.AddRow(Button{
			Label: script,
			Data:  Action{Verb: VerbSelectScript, Subject: device, Target: script}.Encode(),
		})
	}
	return kb
}

// accessMenuKeyboard is the top admin menu: one row per device with a
// short summary, plus cache and stats controls.
func accessMenuKeyboard(devices []deviceSummary) *Keyboard {
	kb := &Keyboard{}
	for _, d := range devices {
		kb.AddRow(Button{
			Label: fmt.Sprintf("🌐 %s | 📡 %s | 👥 %d", d.name, d.address, d.users),
			Data:  Action{Verb: VerbAccessManage, Subject: d.name}.Encode(),
		})
	}
	kb.AddRow(
		Button{Label: i18n.T("access.btn_refresh"), Data: Action{Verb: VerbAccessRefresh}.Encode()},
		Button{Label: i18n.T("access.btn_stats"), Data: Action{Verb: VerbAccessStats}.Encode()},
	)
	return kb
}

// accessDeviceKeyboard is the per-device admin panel.
func accessDeviceKeyboard(device string, userCount int) *Keyboard {
	kb := &Keyboard{}
	kb.AddRow(Button{
		Label: fmt.Sprintf(i18n.T("access.btn_users"), userCount),
		Data:  Action{Verb: VerbAccessUsers, Subject: device}.Encode(),
	})
	kb.AddRow(Button{
		Label: i18n.T("access.btn_add_user"),
		Data:  Action{Verb: VerbAccessAddUser, Subject: device}.Encode(),
	})
	kb.AddRow(Button{
		Label: i18n.T("access.btn_remove_user"),
		Data:  Action{Verb: VerbAccessRemoveUser, Subject: device}.Encode(),
	})
	kb.AddRow(Button{
		Label: i18n.T("access.btn_back"),
		Data:  Action{Verb: VerbAccessMenu}.Encode(),
	})
	return kb
}

type deviceSummary struct {
	name    string
	address string
	users   int
}
