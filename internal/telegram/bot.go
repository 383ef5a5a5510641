// Package telegram feeds Telegram text messages into the chat service.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/service"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

// ChatType is the chat type recorded for Telegram conversations.
const ChatType = "telegram"

// ChatHandler runs one turn for an inbound message.
type ChatHandler interface {
	Handle(ctx context.Context, in service.Inbound) (*model.TurnResult, error)
}

type replier interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Adapter long-polls Telegram and answers every text message.
type Adapter struct {
	chat   ChatHandler
	logger *logger.Logger
	bot    *bot.Bot
}

// New creates the bot client for token.
func New(token string, chat ChatHandler, log *logger.Logger) (*Adapter, error) {
	a := &Adapter{chat: chat, logger: log.Component("telegram")}
	b, err := bot.New(token, bot.WithDefaultHandler(a.onUpdate))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	a.bot = b
	return a, nil
}

// Run polls for updates until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) {
	a.logger.Info("telegram polling started")
	a.bot.Start(ctx)
	a.logger.Info("telegram polling stopped")
}

func (a *Adapter) onUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	a.handleUpdate(ctx, b, update)
}

func (a *Adapter) handleUpdate(ctx context.Context, r replier, update *models.Update) {
	in, ok := inboundFromUpdate(update)
	if !ok {
		return
	}

	text := service.FailureReplyText
	result, err := a.chat.Handle(ctx, in)
	if err != nil {
		a.logger.Error("telegram turn failed", zap.Error(err))
	} else {
		text = result.Reply.Text
	}

	if _, err := r.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	}); err != nil {
		a.logger.Warn("failed to send telegram reply", zap.Error(err))
	}
}

// inboundFromUpdate converts a text message update. Other updates are
// ignored.
func inboundFromUpdate(update *models.Update) (service.Inbound, bool) {
	if update == nil || update.Message == nil || update.Message.Text == "" {
		return service.Inbound{}, false
	}
	msg := update.Message

	ts := time.Now().UTC()
	if msg.Date > 0 {
		ts = time.Unix(int64(msg.Date), 0).UTC()
	}
	raw, _ := json.Marshal(update)

	return service.Inbound{
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		ChatType:    ChatType,
		Text:        msg.Text,
		Timestamp:   ts,
		RawPayload:  raw,
		ReplyInline: true,
	}, true
}
