package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdFeed     = "feed"
	cmdRmTime   = "rmtime"
	cmdAutoFeed = "autofeed"
)

// handleCallback runs inline keyboard actions. Callback data is
// "<command>:<arg>[:<arg>...]" and maps onto the command of the same name.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.tg.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, rest, ok := strings.Cut(data, ":")
	if !ok || rest == "" {
		return
	}
	args := strings.ReplaceAll(rest, ":", " ")

	log := b.log.With("action", action, "args", args, "chat_id", chatID)
	if cb.From != nil {
		log = log.With("user_id", cb.From.ID, "username", cb.From.UserName)
	}
	log.Info("callback")

	switch action {
	case cmdFeed:
		b.handleFeed(ctx, chatID, args)
	case cmdRmTime:
		b.handleRmTime(ctx, chatID, args)
	case cmdAutoFeed:
		b.handleAutoFeed(ctx, chatID, args)
	}
}
