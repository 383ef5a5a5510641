package model

import (
	"time"
)

// CasePayload is the data handed to the case store when a ticket is created.
type CasePayload struct {
	Type   CaseType    `json:"type"`
	Shared SharedSlots `json:"shared"`
	Slots  CaseSlots   `json:"slots"`
}

// CaseRecord is a persisted ticket.
type CaseRecord struct {
	TicketID        string      `json:"ticket_id"`
	ConversationKey string      `json:"conversation_key"`
	Type            CaseType    `json:"type"`
	Status          string      `json:"status"`
	Payload         CasePayload `json:"payload"`
	CreatedAt       time.Time   `json:"created_at"`

	Followups []CaseFollowup `json:"followups,omitempty"`
}

// CaseFollowup is a message the user sent about a conversation after its
// latest ticket was created. It is attached to that ticket.
type CaseFollowup struct {
	ID              string    `json:"id"`
	TicketID        string    `json:"ticket_id"`
	ConversationKey string    `json:"conversation_key"`
	Text            string    `json:"text"`
	ChatID          string    `json:"chat_id,omitempty"`
	ChannelID       string    `json:"channel_id,omitempty"`
	ChatType        string    `json:"chat_type,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TicketEvent is published when a ticket is created.
type TicketEvent struct {
	TicketID        string      `json:"ticket_id"`
	ConversationKey string      `json:"conversation_key"`
	CaseType        CaseType    `json:"case_type"`
	Payload         CasePayload `json:"payload"`
	ChatID          string      `json:"chat_id"`
	ChannelID       string      `json:"channel_id"`
	ChatType        string      `json:"chat_type"`
	CreatedAt       time.Time   `json:"created_at"`
}

// OutboxKind distinguishes outbound deliveries.
type OutboxKind string

const (
	OutboxReply OutboxKind = "reply"
	OutboxOps   OutboxKind = "ops"
)

// OutboxStatus is the delivery state of an outbox item.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSending OutboxStatus = "sending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxItem is one queued outbound chat message.
type OutboxItem struct {
	ID            string       `json:"id"`
	Kind          OutboxKind   `json:"kind"`
	ChannelID     string       `json:"channel_id"`
	ChatID        string       `json:"chat_id"`
	ChatType      string       `json:"chat_type"`
	Text          string       `json:"text"`
	TicketID      string       `json:"ticket_id,omitempty"`
	CaseType      CaseType     `json:"case_type,omitempty"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	LastError     string       `json:"last_error,omitempty"`
	NextAttemptAt time.Time    `json:"next_attempt_at"`
	CreatedAt     time.Time    `json:"created_at"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
}
