// Package wazzup is a minimal client for the Wazzup chat API.
package wazzup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.wazzup24.com"

// Client sends text messages through the chat API.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty).
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Message is the request body of POST /v3/message.
type Message struct {
	ChannelID    string `json:"channelId"`
	ChatType     string `json:"chatType"`
	ChatID       string `json:"chatId"`
	Text         string `json:"text"`
	CRMMessageID string `json:"crmMessageId"`
}

// SendText posts one message. Any non-2xx response is an error.
func (c *Client) SendText(ctx context.Context, msg Message) error {
	if c.APIKey == "" {
		return fmt.Errorf("missing wazzup api key")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("missing chat id")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v3/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("wazzup api: status %d: %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// Send delivers an outbox item. The item id doubles as the CRM message id
// so retries of the same item can be deduplicated upstream.
func (c *Client) Send(ctx context.Context, item *model.OutboxItem) error {
	return c.SendText(ctx, Message{
		ChannelID:    item.ChannelID,
		ChatType:     item.ChatType,
		ChatID:       item.ChatID,
		Text:         item.Text,
		CRMMessageID: item.ID,
	})
}
