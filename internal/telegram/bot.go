package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultAPI = "https://api.telegram.org"

// Bot is a minimal Telegram Bot API client.
type Bot struct {
	token   string
	baseURL string
	client  *http.Client
}

type BotOption func(*Bot)

// WithAPIURL points the bot at another Bot API server.
func WithAPIURL(url string) BotOption {
	return func(b *Bot) { b.baseURL = fmt.Sprintf("%s/bot%s", url, b.token) }
}

// New creates a bot for token.
func New(token string, opts ...BotOption) *Bot {
	b := &Bot{
		token:   token,
		baseURL: fmt.Sprintf("%s/bot%s", defaultAPI, token),
		// Long polling holds getUpdates open for up to 30 seconds.
		client: &http.Client{Timeout: 40 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetUpdates long-polls for updates after offset.
func (b *Bot) GetUpdates(ctx context.Context, offset int) ([]Update, error) {
	url := fmt.Sprintf("%s/getUpdates?offset=%d&timeout=30", b.baseURL, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read getUpdates response: %w", err)
	}

	var response GetUpdatesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !response.OK {
		return nil, &APIError{Method: "getUpdates", Description: response.Description}
	}
	return response.Result, nil
}

// SendMessage sends Markdown text to chatID.
func (b *Bot) SendMessage(chatID int64, text string) error {
	request := SendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode sendMessage request: %w", err)
	}

	resp, err := b.client.Post(b.baseURL+"/sendMessage", "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("sendMessage request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sendMessage response: %w", err)
	}

	var response SendMessageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decode sendMessage response: %w", err)
	}
	if !response.OK {
		return &APIError{Method: "sendMessage", Description: response.Description}
	}
	return nil
}

// SendFormattedMessage formats and sends a message.
func (b *Bot) SendFormattedMessage(chatID int64, format string, args ...any) error {
	return b.SendMessage(chatID, fmt.Sprintf(format, args...))
}

// StartPolling delivers updates to handler in order until ctx is cancelled.
func (b *Bot) StartPolling(ctx context.Context, handler func(Update)) error {
	offset := 0
	for {
		updates, err := b.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("get updates failed", "error", err)
			if !sleep(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			handler(update)
		}

		if len(updates) == 0 && !sleep(ctx, time.Second) {
			return ctx.Err()
		}
	}
}

// APIError is a response with ok=false.
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s failed", e.Method)
	}
	return fmt.Sprintf("telegram %s failed: %s", e.Method, e.Description)
}

// IsAPIError reports whether err came from the Bot API itself rather than
// the transport.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
