package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/middleware"
	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/service"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

const maxWebhookBody = 1 << 20

var errInvalidPayload = errors.New("payload must be an object or an array")

// ChatHandler runs one turn for an inbound message.
type ChatHandler interface {
	Handle(ctx context.Context, in service.Inbound) (*model.TurnResult, error)
}

// WebhookHandler ingests chat provider webhooks.
type WebhookHandler struct {
	chat   ChatHandler
	logger *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(chat ChatHandler, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		chat:   chat,
		logger: log,
	}
}

// WebhookResponse is returned for every accepted webhook call.
type WebhookResponse struct {
	OK        bool `json:"ok"`
	Processed int  `json:"processed"`
}

// Receive handles POST /webhook/wazzup and POST /webhooks
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	items, err := webhookItems(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	processed := 0
	for _, item := range items {
		in, ok := extractInbound(item)
		if !ok {
			h.logger.Debug("skipping webhook item", zap.Int("keys", len(item)))
			continue
		}
		if err := middleware.ValidateMessageText(in.Text); err != nil {
			h.logger.Warn("skipping webhook item", zap.Error(err))
			continue
		}
		// The service has already queued an apology and logged the error.
		if _, err := h.chat.Handle(ctx, in); err != nil {
			continue
		}
		processed++
	}

	writeJSON(w, http.StatusOK, WebhookResponse{OK: true, Processed: processed})
}

// webhookItems accepts a single payload object, an array of them, or an
// object carrying them under "messages".
func webhookItems(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var raw []any
	switch t := v.(type) {
	case []any:
		raw = t
	case map[string]any:
		if msgs, ok := t["messages"].([]any); ok {
			raw = msgs
		} else {
			raw = []any{t}
		}
	default:
		return nil, errInvalidPayload
	}

	items := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, nil
}

// extractInbound maps a provider payload to an inbound message. Status
// callbacks, echoes of our own messages, outbound directions and payloads
// without text or chat id are skipped.
func extractInbound(item map[string]any) (service.Inbound, bool) {
	if _, ok := item["statuses"]; ok {
		return service.Inbound{}, false
	}
	if echo, ok := item["isEcho"].(bool); ok && echo {
		return service.Inbound{}, false
	}
	if dir := stringValue(item["direction"]); dir != "" && dir != "inbound" {
		return service.Inbound{}, false
	}

	text := stringValue(item["text"])
	if text == "" {
		text = nestedText(item["raw"])
	}
	if text == "" {
		text = nestedText(item["content"])
	}
	chatID := stringValue(item["chatId"])
	if text == "" || chatID == "" {
		return service.Inbound{}, false
	}

	chatType := stringValue(item["chatType"])
	if chatType == "" {
		chatType = "whatsapp"
	}

	var ts time.Time
	if dt := stringValue(item["dateTime"]); dt != "" {
		if parsed, err := time.Parse(time.RFC3339, dt); err == nil {
			ts = parsed.UTC()
		}
	}

	raw, _ := json.Marshal(item)
	return service.Inbound{
		ChatID:     chatID,
		ChannelID:  stringValue(item["channelId"]),
		ChatType:   chatType,
		Text:       text,
		Timestamp:  ts,
		RawPayload: raw,
	}, true
}

func nestedText(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	return stringValue(m["text"])
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}
