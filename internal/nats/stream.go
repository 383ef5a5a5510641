package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

const (
	// StreamName is the name of the bot event stream.
	StreamName = "RAILBOT"

	// SubjectPrefix is the prefix for all bot subjects.
	SubjectPrefix = "railbot"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the bot stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, StreamConfig())
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// StreamConfig returns the configuration of the bot stream. Messages are
// a mirror of the durable log, so retention is bounded.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Support bot messages and created tickets",
	}
}

// MessageSubject returns the subject for a logged message.
func MessageSubject(conversationKey string, direction model.Direction) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, conversationKey, direction)
}

// TicketSubject returns the subject for a created ticket.
func TicketSubject(conversationKey string, caseType model.CaseType) string {
	return fmt.Sprintf("%s.%s.ticket.%s", SubjectPrefix, conversationKey, caseType)
}

// ConversationFilter returns the filter subject for everything in a conversation.
func ConversationFilter(conversationKey string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, conversationKey)
}

// PublishMessage mirrors a logged message to JetStream.
func (m *StreamManager) PublishMessage(ctx context.Context, msg *model.MessageRecord) (uint64, error) {
	return m.publish(ctx, MessageSubject(msg.ConversationKey, msg.Direction), msg)
}

// PublishTicket publishes a created ticket.
func (m *StreamManager) PublishTicket(ctx context.Context, ev *model.TicketEvent) (uint64, error) {
	return m.publish(ctx, TicketSubject(ev.ConversationKey, ev.CaseType), ev)
}

func (m *StreamManager) publish(ctx context.Context, subject string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s: %w", subject, err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	return ack.Sequence, nil
}

// Tickets fetches up to limit ticket events of a conversation, starting
// after sequence afterSequence.
func (m *StreamManager) Tickets(ctx context.Context, conversationKey string, afterSequence uint64, limit int) ([]model.TicketEvent, uint64, error) {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: fmt.Sprintf("%s.%s.ticket.>", SubjectPrefix, conversationKey),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch tickets: %w", err)
	}

	var events []model.TicketEvent
	var lastSequence uint64
	for msg := range batch.Messages() {
		var ev model.TicketEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, ev)
	}
	if err := batch.Error(); err != nil && err != context.DeadlineExceeded {
		return nil, 0, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, nil
}
