// Package service provides business logic for the support bot.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
	"github.com/capitalize-ai/rail-support-bot/pkg/metrics"
	"github.com/capitalize-ai/rail-support-bot/pkg/tracing"
)

// FailureReplyText is sent when a turn could not be processed.
const FailureReplyText = "Sorry, something went wrong. Please try again."

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
}

// Records is the part of the record store the chat service writes to.
type Records interface {
	AddMessage(ctx context.Context, rec *model.MessageRecord) error
	EnqueueOutbox(ctx context.Context, item *model.OutboxItem) error
}

// EventPublisher mirrors messages and tickets to an event stream.
type EventPublisher interface {
	PublishMessage(ctx context.Context, msg *model.MessageRecord) (uint64, error)
	PublishTicket(ctx context.Context, ev *model.TicketEvent) (uint64, error)
}

// ChatConfig controls delivery side effects of a turn.
type ChatConfig struct {
	HashSalt     string
	SendEnabled  bool
	OpsChannelID string
	OpsChatID    string
	OpsChatType  string
}

// Inbound is one message received from a chat channel.
type Inbound struct {
	ChatID     string
	ChannelID  string
	ChatType   string
	Text       string
	Timestamp  time.Time
	RawPayload json.RawMessage

	// ReplyInline is set by channels that deliver the reply themselves;
	// the reply is then not queued to the outbox.
	ReplyInline bool
}

// ChatService turns inbound chat messages into dialog turns and takes care
// of everything around them: anonymized keys, per-conversation ordering,
// outbound logging, delivery and events.
type ChatService struct {
	engine  TurnHandler
	records Records
	events  EventPublisher
	cfg     ChatConfig
	logger  *logger.Logger
	tracer  trace.Tracer
	locks   *keyLocks
	now     func() time.Time
}

// NewChatService creates a new chat service. events may be nil.
func NewChatService(engine TurnHandler, records Records, events EventPublisher, cfg ChatConfig, log *logger.Logger) *ChatService {
	return &ChatService{
		engine:  engine,
		records: records,
		events:  events,
		cfg:     cfg,
		logger:  log,
		tracer:  tracing.Tracer("github.com/capitalize-ai/rail-support-bot/internal/service"),
		locks:   newKeyLocks(),
		now:     time.Now,
	}
}

// ConversationKey returns the anonymized key of a chat: hex SHA-256 of
// "<salt>|<chatID>".
func ConversationKey(salt, chatID string) string {
	sum := sha256.Sum256([]byte(salt + "|" + chatID))
	return hex.EncodeToString(sum[:])
}

// Key returns the conversation key for chatID under the configured salt.
func (s *ChatService) Key(chatID string) string {
	return ConversationKey(s.cfg.HashSalt, chatID)
}

// Handle processes one inbound message. Turns for the same chat run one at
// a time. When the turn fails the user is sent FailureReplyText (if
// delivery is enabled) and the error is returned.
func (s *ChatService) Handle(ctx context.Context, in Inbound) (*model.TurnResult, error) {
	key := s.Key(in.ChatID)
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now().UTC()
	}
	log := s.logger.WithConversation(uuid.NewString(), key).With(zap.String("chat_type", in.ChatType))

	unlock := s.locks.lock(key)
	defer unlock()

	ctx, span := s.tracer.Start(ctx, "turn", trace.WithAttributes(
		attribute.String("conversation.key", key),
		attribute.String("chat.type", in.ChatType),
	))
	defer span.End()

	start := time.Now()
	result, err := s.engine.HandleTurn(ctx, model.TurnInput{
		Key: key,
		Chat: model.ChatMeta{
			ChatID:     in.ChatID,
			ChannelID:  in.ChannelID,
			ChatType:   in.ChatType,
			Timestamp:  in.Timestamp,
			RawPayload: in.RawPayload,
		},
		Text: in.Text,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		metrics.RecordTurn(in.ChatType, "", "error", 0, time.Since(start).Seconds())
		log.Error("turn failed", zap.Error(err))

		if s.cfg.SendEnabled && !in.ReplyInline {
			if qerr := s.records.EnqueueOutbox(ctx, s.replyItem(in, FailureReplyText)); qerr != nil {
				log.Error("failed to enqueue failure reply", zap.Error(qerr))
			}
		}
		return nil, fmt.Errorf("turn failed: %w", err)
	}

	span.SetAttributes(
		attribute.String("turn.phase", string(result.Phase)),
		attribute.Int("turn.meaning_score", result.MeaningScore),
		attribute.Int("turn.tickets", len(result.Tickets)),
	)
	metrics.RecordTurn(in.ChatType, string(result.Phase), "ok", result.MeaningScore, time.Since(start).Seconds())
	if result.Tone == model.ToneAngry {
		metrics.AngryMessages.WithLabelValues(in.ChatType).Inc()
	}
	for _, t := range result.OpenedCases {
		metrics.CasesOpened.WithLabelValues(string(t)).Inc()
	}

	s.afterTurn(ctx, log, key, in, result)
	return result, nil
}

// afterTurn runs the side effects of a committed turn. The turn itself is
// already persisted, so failures here are logged and never undo it.
func (s *ChatService) afterTurn(ctx context.Context, log *logger.Logger, key string, in Inbound, result *model.TurnResult) {
	if !result.Reset {
		s.publishMessage(ctx, log, &model.MessageRecord{
			ConversationKey: key,
			ChatID:          in.ChatID,
			ChannelID:       in.ChannelID,
			ChatType:        in.ChatType,
			Direction:       model.DirectionIn,
			Text:            in.Text,
			Timestamp:       in.Timestamp,
		})
	}

	out := &model.MessageRecord{
		ConversationKey: key,
		ChatID:          in.ChatID,
		ChannelID:       in.ChannelID,
		ChatType:        in.ChatType,
		Direction:       model.DirectionOut,
		Text:            result.Reply.Text,
		Timestamp:       s.now().UTC(),
	}
	if err := s.records.AddMessage(ctx, out); err != nil {
		log.Error("failed to log outbound message", zap.Error(err))
	}
	s.publishMessage(ctx, log, out)

	if s.cfg.SendEnabled && !in.ReplyInline {
		if err := s.records.EnqueueOutbox(ctx, s.replyItem(in, result.Reply.Text)); err != nil {
			log.Error("failed to enqueue reply", zap.Error(err))
		}
	}

	for _, t := range result.Tickets {
		metrics.TicketsCreated.WithLabelValues(string(t.CaseType)).Inc()

		ev := &model.TicketEvent{
			TicketID:        t.TicketID,
			ConversationKey: key,
			CaseType:        t.CaseType,
			Payload:         t.Payload,
			ChatID:          in.ChatID,
			ChannelID:       in.ChannelID,
			ChatType:        in.ChatType,
			CreatedAt:       s.now().UTC(),
		}
		if s.events != nil {
			if _, err := s.events.PublishTicket(ctx, ev); err != nil {
				metrics.EventPublishFailures.WithLabelValues("ticket").Inc()
				log.Warn("failed to publish ticket", zap.String("ticket_id", t.TicketID), zap.Error(err))
			}
		}

		if s.cfg.OpsChatID != "" {
			item := &model.OutboxItem{
				Kind:      model.OutboxOps,
				ChannelID: s.cfg.OpsChannelID,
				ChatID:    s.cfg.OpsChatID,
				ChatType:  s.cfg.OpsChatType,
				Text:      OpsSummary(ev),
				TicketID:  t.TicketID,
				CaseType:  t.CaseType,
			}
			if err := s.records.EnqueueOutbox(ctx, item); err != nil {
				log.Error("failed to enqueue ops summary", zap.String("ticket_id", t.TicketID), zap.Error(err))
			}
		}
	}
}

func (s *ChatService) publishMessage(ctx context.Context, log *logger.Logger, msg *model.MessageRecord) {
	if s.events == nil {
		return
	}
	seq, err := s.events.PublishMessage(ctx, msg)
	if err != nil {
		metrics.EventPublishFailures.WithLabelValues("message").Inc()
		log.Warn("failed to publish message", zap.String("direction", string(msg.Direction)), zap.Error(err))
		return
	}
	msg.Sequence = seq
}

func (s *ChatService) replyItem(in Inbound, text string) *model.OutboxItem {
	return &model.OutboxItem{
		Kind:      model.OutboxReply,
		ChannelID: in.ChannelID,
		ChatID:    in.ChatID,
		ChatType:  in.ChatType,
		Text:      text,
	}
}
