package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snackloader/internal/config"
	"snackloader/internal/livedata"
	"snackloader/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Feeder runs a feeding.
type Feeder interface {
	Execute(ctx context.Context, pet model.Pet, requested int, source model.Source) (model.FeedingOutcome, error)
}

// SettingsEditor reads and edits the feeder settings document.
type SettingsEditor interface {
	GetOrDefault(ctx context.Context, userID string) (model.FeederSettings, error)
	AddEntry(ctx context.Context, userID string, pet model.Pet, entry model.ScheduleEntry) (model.FeederSettings, error)
	RemoveEntry(ctx context.Context, userID string, pet model.Pet, index int) (model.FeederSettings, error)
	SetAutoFeed(ctx context.Context, userID string, enabled bool) (model.FeederSettings, error)
}

// LiveState exposes the latest device readings.
type LiveState interface {
	Snapshot() livedata.Snapshot
}

// IntakeReader reads the daily intake ledger.
type IntakeReader interface {
	Today() string
	Day(ctx context.Context, date string) ([]model.DailyIntake, error)
}

// HistoryReader lists recent feeding evaluations.
type HistoryReader interface {
	ListFeedEvents(ctx context.Context, limit int) ([]model.FeedEvent, error)
}

// Services are the application components the bot drives.
type Services struct {
	Feeder   Feeder
	Settings SettingsEditor
	Live     LiveState
	Intake   IntakeReader
	History  HistoryReader
}

// Bot is the Telegram bot that handles user commands and sends feeding notifications.
type Bot struct {
	svc Services
	tg  telegramAPI
	cfg *config.Config
	log *slog.Logger
	now func() time.Time
}

// New creates a Bot with the given Telegram token, services, and config.
func New(token string, svc Services, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		svc: svc,
		tg:  api,
		cfg: cfg,
		log: log,
		now: time.Now,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

// NotifyFeeding tells every allowed user about a scheduled feeding.
func (b *Bot) NotifyFeeding(o model.FeedingOutcome, err error) {
	text := "Scheduled feeding: " + FormatOutcome(o)
	if err != nil {
		text = fmt.Sprintf("Scheduled feeding of %s failed.", o.Pet)
	}
	if len(b.cfg.AllowedUsers) == 0 {
		b.log.Debug("no users to notify", "pet", o.Pet)
		return
	}
	for _, uid := range b.cfg.AllowedUsers {
		b.SendMessage(uid, text)
	}
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	msg.DisableWebPagePreview = true
	if _, err := b.tg.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", msg.ChatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdFeed:
		b.handleFeed(ctx, chatID, args)
	case "status":
		b.handleStatus(chatID)
	case "schedule":
		b.handleSchedule(ctx, chatID)
	case "addtime":
		b.handleAddTime(ctx, chatID, args)
	case cmdRmTime:
		b.handleRmTime(ctx, chatID, args)
	case cmdAutoFeed:
		b.handleAutoFeed(ctx, chatID, args)
	case "intake":
		b.handleIntake(ctx, chatID, args)
	case "history":
		b.handleHistory(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
