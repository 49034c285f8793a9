package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dkurbatov/zayavki-bot/internal/handler"
)

// Bot adapts the Telegram Bot API to the dispatcher's transport and runs the
// long-poll loop.
type Bot struct {
	api *tgbotapi.BotAPI
}

func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Bot{api: api}, nil
}

// Run polls for updates until ctx is cancelled. Each update is dispatched on
// its own goroutine; the dispatcher's per-user lock keeps one user's triggers
// sequential.
func (b *Bot) Run(ctx context.Context, dispatch func(context.Context, handler.Update)) {
	slog.Info("telegram bot started", "username", b.api.Self.UserName)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case raw, ok := <-updates:
			if !ok {
				return
			}
			upd, ok := normalize(raw)
			if !ok {
				continue
			}
			go dispatch(ctx, upd)
		}
	}
}

// normalize maps a raw Telegram update onto the dispatcher's update shape.
// The chat id is the user identity; updates without one are dropped.
func normalize(raw tgbotapi.Update) (handler.Update, bool) {
	switch {
	case raw.CallbackQuery != nil && raw.CallbackQuery.Message != nil:
		cb := raw.CallbackQuery
		return handler.Update{
			ChatID: cb.Message.Chat.ID,
			Callback: &handler.Callback{
				ID:          cb.ID,
				Data:        cb.Data,
				MessageID:   cb.Message.MessageID,
				MessageText: cb.Message.Text,
			},
		}, true
	case raw.Message != nil:
		return handler.Update{
			ChatID:    raw.Message.Chat.ID,
			MessageID: raw.Message.MessageID,
			Text:      raw.Message.Text,
		}, true
	}
	return handler.Update{}, false
}

func (b *Bot) Send(_ context.Context, chatID int64, text string, keyboard [][]handler.Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = markup(keyboard)
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

func (b *Bot) EditText(_ context.Context, chatID int64, messageID int, text string, keyboard [][]handler.Button) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if keyboard != nil {
		m := markup(keyboard)
		edit.ReplyMarkup = &m
	}
	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (b *Bot) EditKeyboard(_ context.Context, chatID int64, messageID int, keyboard [][]handler.Button) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup(keyboard))
	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit keyboard of %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (b *Bot) Delete(_ context.Context, chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (b *Bot) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func markup(keyboard [][]handler.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
