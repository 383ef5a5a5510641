package model

import (
	"encoding/json"
	"time"
)

// Direction marks a logged message as inbound or outbound.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ChatMeta identifies the chat a turn arrived from.
type ChatMeta struct {
	ChatID     string          `json:"chatId"`
	ChannelID  string          `json:"channelId"`
	ChatType   string          `json:"chatType"`
	Timestamp  time.Time       `json:"timestamp"`
	RawPayload json.RawMessage `json:"rawPayload,omitempty"`
}

// MessageRecord is one entry of the append-only message log.
type MessageRecord struct {
	ID              string          `json:"id"`
	ConversationKey string          `json:"conversation_key"`
	ChatID          string          `json:"chat_id"`
	ChannelID       string          `json:"channel_id"`
	ChatType        string          `json:"chat_type"`
	Direction       Direction       `json:"direction"`
	Text            string          `json:"text"`
	Timestamp       time.Time       `json:"timestamp"`
	RawPayload      json.RawMessage `json:"raw_payload,omitempty"`

	// Stream metadata (populated when mirrored to JetStream)
	Sequence uint64 `json:"sequence,omitempty"`
}

// TurnInput is one inbound user message addressed to a conversation.
type TurnInput struct {
	Key  string
	Chat ChatMeta
	Text string
}

// BotReply is the text sent back for a turn with the slots it asks for.
type BotReply struct {
	Text       string `json:"text"`
	AskedSlots []Slot `json:"asked_slots,omitempty"`
}

// CreatedTicket reports a ticket created during a turn.
type CreatedTicket struct {
	CaseType CaseType    `json:"case_type"`
	TicketID string      `json:"ticket_id"`
	Payload  CasePayload `json:"payload"`
}

// Tone is the coarse emotional label of a message.
type Tone string

const (
	ToneAngry    Tone = "angry"
	TonePositive Tone = "positive"
	ToneNeutral  Tone = "neutral"
)

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	Reply        BotReply        `json:"reply"`
	Tickets      []CreatedTicket `json:"tickets,omitempty"`
	OpenedCases  []CaseType      `json:"opened_cases,omitempty"`
	Phase        Phase           `json:"phase"`
	Intents      []CaseType      `json:"intents,omitempty"`
	MeaningScore int             `json:"meaning_score"`
	Tone         Tone            `json:"tone"`
	Reset        bool            `json:"reset,omitempty"`
}
