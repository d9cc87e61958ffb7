package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signal-executor/internal/events"
)

const telegramAPI = "https://api.telegram.org"

// Telegram posts messages to one chat through the Bot API.
type Telegram struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewTelegram returns nil when the bot is not configured.
func NewTelegram(botToken, chatID string) *Telegram {
	if botToken == "" || chatID == "" {
		return nil
	}
	return &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		baseURL:    telegramAPI,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts msg as plain text.
func (t *Telegram) Send(ctx context.Context, msg events.Message) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  Format(msg),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram api status %d: %s", resp.StatusCode, raw)
	}
	return nil
}

// Format renders a message for chat delivery.
func Format(msg events.Message) string {
	prefix := "ℹ️"
	switch msg.Level {
	case events.LevelWarning:
		prefix = "⚠️"
	case events.LevelError:
		prefix = "🚨"
	}
	if msg.Symbol != "" {
		return fmt.Sprintf("%s %s\n%s", prefix, msg.Symbol, msg.Text)
	}
	return prefix + " " + msg.Text
}
