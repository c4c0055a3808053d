package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindd/pkg/logx"
)

// TelegramConfig selects the chat (and optional forum topic) reminders are posted to.
type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// Offline skips the getMe call at construction.
	Offline bool
}

type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramSink posts reminders to a Telegram chat.
type TelegramSink struct {
	cfg TelegramConfig
	log logx.Logger
	bot telegramSender
}

func NewTelegramSink(cfg TelegramConfig, log logx.Logger) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	return newTelegramSink(cfg, b, log), nil
}

func newTelegramSink(cfg TelegramConfig, bot telegramSender, log logx.Logger) *TelegramSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TelegramSink{cfg: cfg, bot: bot, log: log.With(logx.String("comp", "telegram"))}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Emit(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// telebot has no context support; bound the call from the outside.
	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := t.bot.Send(&tele.Chat{ID: t.cfg.ChatID}, n.Text(), &tele.SendOptions{
			ThreadID:              t.cfg.ThreadID,
			DisableWebPagePreview: true,
		})
		done <- result{err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		t.log.Debug("telegram reminder sent", logx.String("trigger", n.TriggerID), logx.Int64("chat_id", t.cfg.ChatID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

