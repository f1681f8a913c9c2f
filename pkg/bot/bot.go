package bot

import (
	"context"
	"strconv"
	"strings"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/store"
)

// Frontend runs the command UI on a long-poll loop.
type Frontend struct {
	b       *tg.Bot
	handler *Handler
	log     zerolog.Logger
}

// NewFrontend connects to Telegram and registers the update handlers.
func NewFrontend(db *store.Database, cfg *config.Config, log zerolog.Logger) (*Frontend, *Transport, error) {
	f := &Frontend{log: log.With().Str("component", "bot").Logger()}
	b, err := tg.New(cfg.Telegram.Token,
		tg.WithDefaultHandler(f.onUpdate),
		tg.WithMiddlewares(f.trackUser),
	)
	if err != nil {
		return nil, nil, err
	}
	f.b = b
	transport := NewTransport(b)
	f.handler = &Handler{DB: db, Cfg: cfg, Transport: transport, Log: f.log}
	b.RegisterHandler(tg.HandlerTypeCallbackQueryData, "react:", tg.MatchTypePrefix, f.onReaction)
	return f, transport, nil
}

// Run polls for updates until the context is cancelled.
func (f *Frontend) Run(ctx context.Context) {
	f.b.Start(ctx)
}

// trackUser upserts the sender of every update so registration and
// last-active tracking need no explicit command.
func (f *Frontend) trackUser(next tg.HandlerFunc) tg.HandlerFunc {
	return func(ctx context.Context, b *tg.Bot, update *models.Update) {
		if u := updateSender(update); u != nil {
			err := f.handler.DB.Users.Upsert(ctx, &store.User{
				UserID:    u.ID,
				Username:  u.Username,
				FirstName: u.FirstName,
				LastName:  u.LastName,
			})
			if err != nil {
				f.log.Error().Err(err).Int64("user_id", u.ID).Msg("User upsert failed")
			}
		}
		next(ctx, b, update)
	}
}

func updateSender(update *models.Update) *models.User {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	}
	return nil
}

func (f *Frontend) onUpdate(ctx context.Context, b *tg.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	reply := f.handler.HandleCommand(ctx, msg.From.ID, msg.Text)
	if reply == "" {
		return
	}
	_, err := b.SendMessage(ctx, &tg.SendMessageParams{
		ChatID:    msg.Chat.ID,
		Text:      reply,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		f.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Reply failed")
	}
}

// onReaction handles the 👍/👎 buttons under notifications. Data is
// "react:<reaction>:<property_id>".
func (f *Frontend) onReaction(ctx context.Context, b *tg.Bot, update *models.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}
	parts := strings.Split(cb.Data, ":")
	ack := "Thanks!"
	if len(parts) == 3 {
		propID, err := strconv.ParseInt(parts[2], 10, 64)
		if err == nil {
			ok, err := f.handler.DB.Queue.SetReaction(ctx, cb.From.ID, propID, parts[1])
			if err != nil {
				f.log.Error().Err(err).Msg("Recording reaction failed")
				ack = "Could not record that, sorry."
			} else if !ok {
				ack = "That notification is unknown."
			}
		}
	}
	_, err := b.AnswerCallbackQuery(ctx, &tg.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            ack,
	})
	if err != nil {
		f.log.Error().Err(err).Msg("Answering callback failed")
	}
}
