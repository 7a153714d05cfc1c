// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package notify fans admin notifications out to the configured
// channels. Each channel is a separate bot token plus a chat ID, so
// admins can receive alerts through bots the end-user bot never sees.
// Delivery is strictly best-effort.
package notify

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/darkistan/routermaster/internal/logging"
)

// Channel configures one admin notification target. Disabled channels
// are skipped entirely.
type Channel struct {
	Token   string
	ChatID  int64
	Enabled bool
}

// sender abstracts the Telegram client for tests.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// newSender is the connection seam; tests replace it.
var newSender = func(token string) (sender, error) {
	return tgbotapi.NewBotAPI(token)
}

type adminBot struct {
	chatID int64
	api    sender
}

// Notifier delivers messages to all enabled channels. Bots are
// connected lazily on first use so a misconfigured admin token cannot
// stop the main bot from starting.
type Notifier struct {
	channels []Channel

	once sync.Once
	bots []adminBot
}

// New returns a notifier for the given channels (0, 1, or 2 in
// practice; any number works).
func New(channels ...Channel) *Notifier {
	return &Notifier{channels: channels}
}

func (n *Notifier) init() {
	for i, ch := range n.channels {
		if !ch.Enabled {
			logging.Infof("notify: admin channel %d disabled", i+1)
			continue
		}
		api, err := newSender(ch.Token)
		if err != nil {
			logging.Errorf("notify: admin channel %d init failed: %v", i+1, err)
			continue
		}
		n.bots = append(n.bots, adminBot{chatID: ch.ChatID, api: api})
		logging.Infof("notify: admin channel %d ready", i+1)
	}
}

// Notify sends the message to every ready channel. Failures are logged
// and never surfaced to the caller.
func (n *Notifier) Notify(text string) {
	n.once.Do(n.init)

	sent := 0
	for _, b := range n.bots {
		if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
			logging.Errorf("notify: delivery to chat %d failed: %v", b.chatID, err)
			continue
		}
		sent++
	}
	if sent == 0 && len(n.bots) > 0 {
		logging.Warnf("notify: message delivered to no admin channel")
	}
}
