package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier sends alerts via Telegram Bot API.
type TelegramNotifier struct {
	chatID string
	client *resty.Client
}

// NewTelegramNotifier creates a Telegram notifier. baseURL may be empty.
func NewTelegramNotifier(baseURL, botToken, chatID string) *TelegramNotifier {
	if baseURL == "" {
		baseURL = defaultTelegramURL
	}
	return &TelegramNotifier{
		chatID: chatID,
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/") + "/bot" + botToken).
			SetTimeout(10 * time.Second),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": t.chatID,
			"text":    fmt.Sprintf("[%s] %s\n%s", alert.Level, alert.Title, alert.Message),
		}).
		SetResult(&result).
		SetError(&result).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}
