// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package bot adapts the Telegram Bot API to the transport-neutral
// event and messenger model of internal/flow. All Telegram-specific
// types stay behind this package.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/darkistan/routermaster/internal/flow"
	"github.com/darkistan/routermaster/internal/logging"
)

// Handler consumes normalized chat events.
type Handler interface {
	HandleEvent(ctx context.Context, ev flow.Event)
}

// Bot is the long-polling Telegram transport. It implements
// flow.Messenger for the outbound direction.
type Bot struct {
	api *tgbotapi.BotAPI
}

// New connects to the Telegram Bot API with the given token.
func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logging.Infof("bot: authorized as @%s", api.Self.UserName)
	return &Bot{api: api}, nil
}

// Run polls for updates until ctx is cancelled. Each update is handled
// on its own goroutine; the coordinator serializes per user.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := EventFromUpdate(update)
			if !ok {
				continue
			}
			go h.HandleEvent(ctx, ev)
		}
	}
}

// EventFromUpdate normalizes one Telegram update into a flow.Event.
// Updates with no usable payload (joins, edits, stickers) are dropped.
func EventFromUpdate(update tgbotapi.Update) (flow.Event, bool) {
	if cb := update.CallbackQuery; cb != nil {
		action, ok := flow.ParseAction(cb.Data)
		if !ok {
			logging.Debugf("bot: dropping unparseable callback %q", cb.Data)
			return flow.Event{}, false
		}
		ev := flow.Event{
			Kind:       flow.KindCallback,
			UserID:     cb.From.ID,
			CallbackID: cb.ID,
			Username:   cb.From.UserName,
			FirstName:  cb.From.FirstName,
			LastName:   cb.From.LastName,
			Action:     action,
		}
		if cb.Message != nil {
			ev.ChatID = cb.Message.Chat.ID
			ev.MessageID = cb.Message.MessageID
		}
		return ev, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return flow.Event{}, false
	}
	ev := flow.Event{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	if msg.IsCommand() {
		ev.Kind = flow.KindCommand
		ev.Command = msg.Command()
		ev.Text = msg.CommandArguments()
		return ev, true
	}
	if msg.Text == "" {
		return flow.Event{}, false
	}
	ev.Kind = flow.KindText
	ev.Text = msg.Text
	return ev, true
}

// SendMessage sends a new message, with an inline keyboard when given.
func (b *Bot) SendMessage(chatID int64, text string, kb *flow.Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if !kb.Empty() {
		msg.ReplyMarkup = toMarkup(kb)
	}
	_, err := b.api.Send(msg)
	return err
}

// EditMessage updates an existing message. An edit rejected because the
// content is unchanged is not an error; any other failure falls back to
// sending a new message.
func (b *Bot) EditMessage(chatID int64, messageID int, text string, kb *flow.Keyboard) error {
	var c tgbotapi.Chattable
	if kb.Empty() {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		c = edit
	} else {
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, toMarkup(kb))
	}
	_, err := b.api.Send(c)
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	logging.Debugf("bot: edit of message %d failed, sending new: %v", messageID, err)
	return b.SendMessage(chatID, text, kb)
}

// AnswerCallback acknowledges a callback query so the client stops
// showing a spinner.
func (b *Bot) AnswerCallback(callbackID, text string) error {
	_, err := b.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func toMarkup(kb *flow.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
