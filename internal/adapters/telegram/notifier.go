// Package telegram — служебные уведомления администратору.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
)

// Notifier шлёт сообщения в админский чат. Ошибки отправки логируются,
// но не роняют вызывающий код: уведомления вторичны к основной работе.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

func NewNotifier(token string, chatID int64, logger zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: создание бота: %w", err)
	}
	return &Notifier{
		bot:    bot,
		chatID: chatID,
		log:    logger.With().Str("component", "notifier").Logger(),
	}, nil
}

func (n *Notifier) Notify(_ context.Context, text string) error {
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(n.chatID, part)
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Warn().Err(err).Msg("не удалось отправить уведомление")
			return fmt.Errorf("telegram: отправка: %w", err)
		}
	}
	return nil
}
