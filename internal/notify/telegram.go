package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Telegram posts to a single group or channel through a bot.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// TelegramOptions configures NewTelegram. Endpoint defaults to the public
// Bot API and must contain two %s verbs (token, method).
type TelegramOptions struct {
	Token    string
	ChatID   int64
	Endpoint string
	Client   *http.Client
	Timeout  time.Duration
}

// NewTelegram authenticates the bot (getMe) and returns a notifier.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" || opts.ChatID == 0 {
		return nil, ErrNotConfigured
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, errors.Wrap(err, "telegram getMe")
	}
	return &Telegram{bot: bot, chatID: opts.ChatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Mention accepts a Telegram username with or without the leading @.
func (t *Telegram) Mention(chatID string) string {
	return "@" + strings.TrimPrefix(chatID, "@")
}

func (t *Telegram) Everyone() string { return "Everyone" }

// Send posts text to the configured chat. The bot client takes no context,
// so a cancelled ctx returns early while the request itself stays bounded
// by the http.Client timeout.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()

	var err error
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "telegram sendMessage")
	case err = <-done:
	}
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return &StatusError{Service: "telegram", Code: apiErr.Code, Body: apiErr.Message}
		}
		return errors.Wrap(err, "telegram sendMessage")
	}
	return nil
}
