package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/solvere/pkg/logger"
)

type sendMessageFunc func(ctx context.Context, params *bot.SendMessageParams) (*tgModels.Message, error)

// TelegramNotificator posts notifications to the operator chat.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot
	chatID string

	send sendMessageFunc
}

func NewTelegramNotificator(logger *logger.Logger, token, chatID string) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger.Named("telegram"),
		chatID: chatID,
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b
	provider.send = b.SendMessage

	return provider, nil
}

// Start polls for updates until ctx is done.
func (t *TelegramNotificator) Start(ctx context.Context) {
	if t.bot != nil {
		t.bot.Start(ctx)
	}
}

func (t *TelegramNotificator) SendNotification(ctx context.Context, message string) {
	if t.chatID == "" {
		t.logger.Warn("Telegram chat id is not configured, dropping notification")
		return
	}
	t.sendTo(ctx, t.chatID, message)
}

func (t *TelegramNotificator) sendTo(ctx context.Context, chatID, message string) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	}
	if _, err := t.send(ctx, params); err != nil {
		t.logger.Error("Failed to send notification", "chat_id", chatID, "error", err)
	}
}

// handler answers /start with the chat id to put into TELEGRAM_CHAT_ID.
func (t *TelegramNotificator) handler(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	if update == nil || update.Message == nil {
		return
	}
	if update.Message.Text != "/start" {
		return
	}
	chatID := fmt.Sprint(update.Message.Chat.ID)
	t.logger.Info("Telegram chat registered", "chat_id", chatID)
	t.sendTo(ctx, chatID, "Set TELEGRAM_CHAT_ID="+chatID+" to receive subscription notifications in this chat.")
}
