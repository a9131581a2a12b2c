package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hmardones/ticketero-backend/pkg/config"
	apperrors "github.com/hmardones/ticketero-backend/pkg/errors"
)

// Sender delivers one rendered message to a chat and returns the provider's
// message id.
type Sender interface {
	Send(ctx context.Context, chatID, text string) (string, error)
}

// TelegramClient talks to the Telegram Bot API sendMessage endpoint.
type TelegramClient struct {
	httpClient *http.Client
	apiURL     string
	botToken   string
}

// NewTelegramClient builds a Telegram sender from config.
func NewTelegramClient(cfg config.TelegramConfig) (*TelegramClient, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramClient{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     cfg.APIURL,
		botToken:   cfg.BotToken,
	}, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Send posts the text to the chat and returns Telegram's message id.
func (c *TelegramClient) Send(ctx context.Context, chatID, text string) (string, error) {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return "", fmt.Errorf("encoding telegram request: %w", err)
	}

	url := c.apiURL + c.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeDependency, err, "telegram request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeDependency, err, "reading telegram response")
	}

	var decoded sendMessageResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", apperrors.Wrap(apperrors.CodeDependency, err, "decoding telegram response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !decoded.OK {
		return "", apperrors.New(apperrors.CodeDependency,
			fmt.Sprintf("telegram send rejected (status %d): %s", resp.StatusCode, decoded.Description))
	}
	return strconv.FormatInt(decoded.Result.MessageID, 10), nil
}
