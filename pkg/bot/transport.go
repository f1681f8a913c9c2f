// Package bot is the Telegram boundary: the delivery transport used by
// the notification worker and the command front-end users talk to.
package bot

import (
	"context"
	"errors"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/huurscout/huurscout/pkg/notify"
)

// Transport sends notification messages through one Telegram bot.
type Transport struct {
	b *tg.Bot
}

// NewTransport wraps a connected bot.
func NewTransport(b *tg.Bot) *Transport {
	return &Transport{b: b}
}

func (t *Transport) SendText(ctx context.Context, chatID int64, html string, buttons []notify.Button) error {
	_, err := t.b.SendMessage(ctx, &tg.SendMessageParams{
		ChatID:      chatID,
		Text:        html,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: keyboard(buttons),
	})
	return mapError(err)
}

func (t *Transport) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, buttons []notify.Button) error {
	_, err := t.b.SendPhoto(ctx, &tg.SendPhotoParams{
		ChatID:      chatID,
		Photo:       &models.InputFileString{Data: photoURL},
		Caption:     caption,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: keyboard(buttons),
	})
	return mapError(err)
}

// keyboard lays the buttons out two per row.
func keyboard(buttons []notify.Button) models.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, b := range buttons {
		btn := models.InlineKeyboardButton{Text: b.Label}
		switch {
		case b.CopyText != "":
			btn.CopyText = models.CopyTextButton{Text: b.CopyText}
		case b.CallbackData != "":
			btn.CallbackData = b.CallbackData
		default:
			btn.URL = b.URL
		}
		row = append(row, btn)
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// mapError folds Telegram API errors onto the worker's sentinel errors.
// Anything unmapped is treated as transient and retried.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tg.ErrorForbidden), errors.Is(err, tg.ErrorUnauthorized):
		return notify.ErrUserBlocked
	case errors.Is(err, tg.ErrorBadRequest), errors.Is(err, tg.ErrorNotFound):
		return notify.ErrBadRequest
	default:
		return err
	}
}
