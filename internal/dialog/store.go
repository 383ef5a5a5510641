package dialog

import (
	"context"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// Store is the persistence the engine reads and writes during a turn.
// GetSession returns nil, nil for an unseen conversation key. Errors from
// any method abort the turn.
type Store interface {
	GetSession(ctx context.Context, key string) (*model.Session, error)
	UpsertSession(ctx context.Context, key string, s *model.Session) error
	ResetSession(ctx context.Context, key string) error
	AddMessage(ctx context.Context, rec *model.MessageRecord) error
	CreateCase(ctx context.Context, key string, caseType model.CaseType, payload model.CasePayload) (string, error)
	AppendFollowup(ctx context.Context, f *model.CaseFollowup) error
}
