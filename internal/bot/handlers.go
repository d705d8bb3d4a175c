package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snackloader/internal/feeding"
	"snackloader/internal/model"
)

const historyLimit = 10

// Portions offered by the quick-feed buttons.
var quickPortions = map[model.Pet]int{
	model.PetCat: 20,
	model.PetDog: 100,
}

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to SnackLoader!

Feed your cat and dog remotely and let the feeder follow a daily schedule.

Quick start:
1. /addtime cat 08:00 20 — feed the cat 20 g every day at 08:00
2. /feed dog 100 — feed the dog right now
3. /status — bowls, temperature and last feedings

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Feeding:
/feed <cat|dog> <grams> — feed now
/status — live feeder state

Schedule:
/schedule — show feeding times
/addtime <cat|dog> <HH:MM> <grams> — add a daily feeding time
/rmtime <cat|dog> <n> — remove feeding time number n
/autofeed on|off — enable or disable scheduled feeding

Records:
/intake [YYYY-MM-DD] — daily intake (default: today)
/history — recent feedings

Portions are adjusted for hot weather when adaptation is on.`)
}

func (b *Bot) handleFeed(ctx context.Context, chatID int64, args string) {
	pet, grams, err := ParseFeedArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	outcome, err := b.svc.Feeder.Execute(ctx, pet, grams, model.SourceManual)
	switch {
	case errors.Is(err, feeding.ErrFeedingFailed):
		b.reply(chatID, "Feeding failed. Please try again.")
		return
	case err != nil:
		b.reply(chatID, err.Error())
		return
	}
	b.reply(chatID, FormatOutcome(outcome))
}

func (b *Bot) handleStatus(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, FormatStatus(b.svc.Live.Snapshot(), b.now()))

	var row []tgbotapi.InlineKeyboardButton
	for _, pet := range model.Pets {
		g := quickPortions[pet]
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("Feed %s %d g", pet, g),
			fmt.Sprintf("%s:%s:%d", cmdFeed, pet, g),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	b.send(msg)
}

func (b *Bot) handleSchedule(ctx context.Context, chatID int64) {
	s, err := b.svc.Settings.GetOrDefault(ctx, b.cfg.UserID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatSchedule(s))
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, pet := range model.Pets {
		for i, e := range s.Schedule(pet) {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Remove %s %s", pet, e.Time),
				fmt.Sprintf("%s:%s:%d", cmdRmTime, pet, i+1),
			)))
		}
	}
	toggle := !s.AutoFeedEnabled
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
		"Turn auto feed "+onOff(toggle),
		cmdAutoFeed+":"+onOff(toggle),
	)))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) handleAddTime(ctx context.Context, chatID int64, args string) {
	pet, entry, err := ParseAddTimeArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	s, err := b.svc.Settings.AddEntry(ctx, b.cfg.UserID, pet, entry)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Added %s feeding at %s (%d g).\n\n%s", pet, entry.Time, entry.AmountGrams, FormatSchedule(s)))
}

func (b *Bot) handleRmTime(ctx context.Context, chatID int64, args string) {
	pet, index, err := ParseRemoveTimeArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	s, err := b.svc.Settings.RemoveEntry(ctx, b.cfg.UserID, pet, index)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed %s feeding #%d.\n\n%s", pet, index+1, FormatSchedule(s)))
}

func (b *Bot) handleAutoFeed(ctx context.Context, chatID int64, args string) {
	enabled, err := ParseOnOff(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if _, err := b.svc.Settings.SetAutoFeed(ctx, b.cfg.UserID, enabled); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Auto feed turned %s.", onOff(enabled)))
}

func (b *Bot) handleIntake(ctx context.Context, chatID int64, args string) {
	date, err := ParseDateArg(args, b.svc.Intake.Today())
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	rows, err := b.svc.Intake.Day(ctx, date)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatIntake(date, rows))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	events, err := b.svc.History.ListFeedEvents(ctx, historyLimit)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatHistory(events, b.now()))
}
