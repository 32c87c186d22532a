package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	tele "gopkg.in/telebot.v4"

	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/orchestrator"
)

// maxMessageLen stays under Telegram's 4096-char cap so the HTML tags
// added by formatting still fit.
const maxMessageLen = 4000

var (
	_ orchestrator.Transport    = (*chatTransport)(nil)
	_ orchestrator.ButtonSender = (*chatTransport)(nil)
	_ orchestrator.FileSender   = (*chatTransport)(nil)
	_ orchestrator.Transport    = (*callbackTransport)(nil)
	_ orchestrator.ButtonSender = (*callbackTransport)(nil)
	_ orchestrator.FileSender   = (*callbackTransport)(nil)
)

// buttonsPerRow keeps inline keyboards readable on phone screens.
const buttonsPerRow = 3

// chatTransport answers messages and slash commands in one chat. The
// placeholder acknowledgment is a real message that later edits
// replace, since Telegram has no deferred-reply notion.
type chatTransport struct {
	bot  *Bot
	chat *tele.Chat
}

func (t *chatTransport) Acknowledge(ctx context.Context, req *interaction.Request, text string) (orchestrator.Handle, error) {
	if text == "" {
		msg, err := t.bot.bot.Send(t.chat, "⏳ Thinking...")
		if err != nil {
			return nil, fmt.Errorf("telegram placeholder send: %w", err)
		}
		return msg, nil
	}
	msg, err := t.bot.sendHTML(t.chat, text)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *chatTransport) EditAcknowledgment(ctx context.Context, req *interaction.Request, h orchestrator.Handle, text string) error {
	msg, ok := h.(*tele.Message)
	if !ok || msg == nil {
		_, err := t.bot.sendHTML(t.chat, text)
		return err
	}
	return t.bot.editHTML(msg, text)
}

func (t *chatTransport) SendFollowup(ctx context.Context, req *interaction.Request, text string) error {
	_, err := t.bot.sendHTML(t.chat, text)
	return err
}

func (t *chatTransport) MaxMessageLen() int { return maxMessageLen }

// AcknowledgeWithButtons attaches an inline keyboard to the reply.
// Telegram keyboards have no disabled state, so disabled buttons are
// left out entirely.
func (t *chatTransport) AcknowledgeWithButtons(ctx context.Context, req *interaction.Request, text string, buttons []orchestrator.Button) (orchestrator.Handle, error) {
	msg, err := t.bot.sendMarkup(t.chat, text, inlineMarkup(buttons))
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SendFile uploads images as photos and everything else as documents.
func (t *chatTransport) SendFile(ctx context.Context, req *interaction.Request, name string, data []byte) error {
	return t.bot.sendFile(t.chat, name, data)
}

// callbackTransport answers a button press by editing the message that
// carried the keyboard, mirroring how the press visually resolves into
// its outcome. Editing without a markup drops the old keyboard.
type callbackTransport struct {
	bot *Bot
	msg *tele.Message
}

func (t *callbackTransport) Acknowledge(ctx context.Context, req *interaction.Request, text string) (orchestrator.Handle, error) {
	if text == "" {
		// The press was already answered via the callback response;
		// the pending edit lands on the source message.
		return t.msg, nil
	}
	if err := t.bot.editHTML(t.msg, text); err != nil {
		return nil, err
	}
	return t.msg, nil
}

func (t *callbackTransport) EditAcknowledgment(ctx context.Context, req *interaction.Request, h orchestrator.Handle, text string) error {
	msg, ok := h.(*tele.Message)
	if !ok || msg == nil {
		msg = t.msg
	}
	return t.bot.editHTML(msg, text)
}

func (t *callbackTransport) SendFollowup(ctx context.Context, req *interaction.Request, text string) error {
	_, err := t.bot.sendHTML(t.msg.Chat, text)
	return err
}

func (t *callbackTransport) MaxMessageLen() int { return maxMessageLen }

func (t *callbackTransport) AcknowledgeWithButtons(ctx context.Context, req *interaction.Request, text string, buttons []orchestrator.Button) (orchestrator.Handle, error) {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: inlineMarkup(buttons)}
	msg, err := t.bot.bot.Edit(t.msg, FormatMessage(text), opts)
	if err != nil {
		opts.ParseMode = ""
		msg, err = t.bot.bot.Edit(t.msg, text, opts)
		if err != nil {
			return nil, fmt.Errorf("telegram edit: %w", err)
		}
	}
	return msg, nil
}

func (t *callbackTransport) SendFile(ctx context.Context, req *interaction.Request, name string, data []byte) error {
	return t.bot.sendFile(t.msg.Chat, name, data)
}

// sendHTML delivers markdown as Telegram HTML, retrying as plain text
// when the API rejects the markup.
func (b *Bot) sendHTML(chat *tele.Chat, markdown string) (*tele.Message, error) {
	msg, err := b.bot.Send(chat, FormatMessage(markdown), &tele.SendOptions{ParseMode: tele.ModeHTML})
	if err != nil {
		L_debug("telegram: html send rejected, sending plain", "error", err)
		msg, err = b.bot.Send(chat, markdown)
		if err != nil {
			return nil, fmt.Errorf("telegram send: %w", err)
		}
	}
	return msg, nil
}

func (b *Bot) editHTML(msg *tele.Message, markdown string) error {
	_, err := b.bot.Edit(msg, FormatMessage(markdown), &tele.SendOptions{ParseMode: tele.ModeHTML})
	if err != nil {
		L_debug("telegram: html edit rejected, editing plain", "error", err)
		_, err = b.bot.Edit(msg, markdown)
		if err != nil {
			return fmt.Errorf("telegram edit: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendMarkup(chat *tele.Chat, markdown string, markup *tele.ReplyMarkup) (*tele.Message, error) {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: markup}
	msg, err := b.bot.Send(chat, FormatMessage(markdown), opts)
	if err != nil {
		opts.ParseMode = ""
		msg, err = b.bot.Send(chat, markdown, opts)
		if err != nil {
			return nil, fmt.Errorf("telegram send: %w", err)
		}
	}
	return msg, nil
}

func (b *Bot) sendFile(chat *tele.Chat, name string, data []byte) error {
	mtype := mimetype.Detect(data)
	file := tele.FromReader(bytes.NewReader(data))

	var what any
	if strings.HasPrefix(mtype.String(), "image/") {
		what = &tele.Photo{File: file}
	} else {
		what = &tele.Document{File: file, FileName: name, MIME: mtype.String()}
	}
	if _, err := b.bot.Send(chat, what); err != nil {
		return fmt.Errorf("telegram file send: %w", err)
	}
	return nil
}

// inlineMarkup lays buttons out in fixed-width keyboard rows. The
// button id travels as the callback data and comes back verbatim.
func inlineMarkup(buttons []orchestrator.Button) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, btn := range buttons {
		if btn.Disabled {
			continue
		}
		row = append(row, tele.InlineButton{Text: btn.Label, Data: btn.ID})
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
