// Package store provides persistence for sessions, the message log, created
// cases and the outbound delivery queue.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// ErrNotFound is returned by lookups for a record that does not exist.
// A missing session is not an error; GetSession returns nil, nil.
var ErrNotFound = errors.New("not found")

// SessionStore persists one dialog session per conversation key.
type SessionStore interface {
	GetSession(ctx context.Context, key string) (*model.Session, error)
	UpsertSession(ctx context.Context, key string, s *model.Session) error
	ResetSession(ctx context.Context, key string) error
	Close() error
}

// RecordStore holds the append-only message log, created cases and the
// outbox.
//
// AppendFollowup attaches f to the newest case of f.ConversationKey and sets
// f.TicketID. It returns ErrNotFound when the conversation has no case.
type RecordStore interface {
	AddMessage(ctx context.Context, rec *model.MessageRecord) error
	ListMessages(ctx context.Context, key string, limit int) ([]model.MessageRecord, error)

	CreateCase(ctx context.Context, key string, caseType model.CaseType, payload model.CasePayload) (string, error)
	GetCase(ctx context.Context, ticketID string) (*model.CaseRecord, error)
	ListCases(ctx context.Context, limit int) ([]model.CaseRecord, error)
	AppendFollowup(ctx context.Context, f *model.CaseFollowup) error

	EnqueueOutbox(ctx context.Context, item *model.OutboxItem) error
	ClaimOutbox(ctx context.Context, now time.Time) (*model.OutboxItem, error)
	MarkOutboxSent(ctx context.Context, id string, at time.Time) error
	RetryOutbox(ctx context.Context, id, lastErr string, next time.Time) error
	FailOutbox(ctx context.Context, id, lastErr string) error
	ListOutbox(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxItem, error)

	Close() error
}

const defaultListLimit = 20

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
