package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// MemoryStore keeps everything in process memory. It implements both
// SessionStore and RecordStore and is used by the local chat REPL and
// tests.
type MemoryStore struct {
	ticketPrefix string
	now          func() time.Time

	mu        sync.RWMutex
	sessions  map[string][]byte
	messages  []model.MessageRecord
	cases     map[string]*model.CaseRecord
	followups map[string][]model.CaseFollowup
	outbox    []*model.OutboxItem
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(ticketPrefix string) *MemoryStore {
	return &MemoryStore{
		ticketPrefix: ticketPrefix,
		now:          time.Now,
		sessions:     make(map[string][]byte),
		cases:        make(map[string]*model.CaseRecord),
		followups:    make(map[string][]model.CaseFollowup),
	}
}

// GetSession returns a copy of the stored session, or nil when absent.
func (m *MemoryStore) GetSession(_ context.Context, key string) (*model.Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// UpsertSession stores a snapshot of s.
func (m *MemoryStore) UpsertSession(_ context.Context, key string, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	m.mu.Lock()
	m.sessions[key] = data
	m.mu.Unlock()
	return nil
}

// ResetSession replaces the session with the default shape.
func (m *MemoryStore) ResetSession(ctx context.Context, key string) error {
	return m.UpsertSession(ctx, key, model.NewSession())
}

// AddMessage appends to the message log.
func (m *MemoryStore) AddMessage(_ context.Context, rec *model.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Sequence = uint64(len(m.messages) + 1)
	m.messages = append(m.messages, *rec)
	return nil
}

// ListMessages returns the most recent messages of a conversation, oldest
// first.
func (m *MemoryStore) ListMessages(_ context.Context, key string, limit int) ([]model.MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MessageRecord
	for _, rec := range m.messages {
		if rec.ConversationKey == key {
			out = append(out, rec)
		}
	}
	if n := listLimit(limit); len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// CreateCase records a ticket and returns its id.
func (m *MemoryStore) CreateCase(_ context.Context, key string, caseType model.CaseType, payload model.CasePayload) (string, error) {
	now := m.now().UTC()
	id, err := newTicketID(m.ticketPrefix, key, now)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.cases[id] = &model.CaseRecord{
		TicketID:        id,
		ConversationKey: key,
		Type:            caseType,
		Status:          "open",
		Payload:         payload,
		CreatedAt:       now,
	}
	m.mu.Unlock()
	return id, nil
}

// GetCase returns a ticket by id.
func (m *MemoryStore) GetCase(_ context.Context, ticketID string) (*model.CaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.cases[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Followups = append([]model.CaseFollowup(nil), m.followups[ticketID]...)
	return &cp, nil
}

// ListCases returns the newest tickets first.
func (m *MemoryStore) ListCases(_ context.Context, limit int) ([]model.CaseRecord, error) {
	m.mu.RLock()
	out := make([]model.CaseRecord, 0, len(m.cases))
	for _, rec := range m.cases {
		out = append(out, *rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TicketID > out[j].TicketID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// AppendFollowup attaches f to the newest case of its conversation.
func (m *MemoryStore) AppendFollowup(_ context.Context, f *model.CaseFollowup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *model.CaseRecord
	for _, rec := range m.cases {
		if rec.ConversationKey != f.ConversationKey {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) ||
			(rec.CreatedAt.Equal(latest.CreatedAt) && rec.TicketID > latest.TicketID) {
			latest = rec
		}
	}
	if latest == nil {
		return ErrNotFound
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = m.now().UTC()
	}
	f.TicketID = latest.TicketID
	m.followups[latest.TicketID] = append(m.followups[latest.TicketID], *f)
	return nil
}

// EnqueueOutbox adds a pending delivery.
func (m *MemoryStore) EnqueueOutbox(_ context.Context, item *model.OutboxItem) error {
	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Status = model.OutboxPending
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = now
	}
	cp := *item
	m.outbox = append(m.outbox, &cp)
	return nil
}

// ClaimOutbox marks the oldest due pending item as sending and returns it,
// or nil when nothing is due.
func (m *MemoryStore) ClaimOutbox(_ context.Context, now time.Time) (*model.OutboxItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due *model.OutboxItem
	for _, it := range m.outbox {
		if it.Status != model.OutboxPending || it.NextAttemptAt.After(now) {
			continue
		}
		if due == nil || it.NextAttemptAt.Before(due.NextAttemptAt) {
			due = it
		}
	}
	if due == nil {
		return nil, nil
	}
	due.Status = model.OutboxSending
	due.Attempts++
	cp := *due
	return &cp, nil
}

// MarkOutboxSent records a successful delivery.
func (m *MemoryStore) MarkOutboxSent(_ context.Context, id string, at time.Time) error {
	return m.updateOutbox(id, func(it *model.OutboxItem) {
		it.Status = model.OutboxSent
		it.LastError = ""
		t := at.UTC()
		it.SentAt = &t
	})
}

// RetryOutbox puts an item back to pending until next.
func (m *MemoryStore) RetryOutbox(_ context.Context, id, lastErr string, next time.Time) error {
	return m.updateOutbox(id, func(it *model.OutboxItem) {
		it.Status = model.OutboxPending
		it.LastError = lastErr
		it.NextAttemptAt = next.UTC()
	})
}

// FailOutbox gives up on an item.
func (m *MemoryStore) FailOutbox(_ context.Context, id, lastErr string) error {
	return m.updateOutbox(id, func(it *model.OutboxItem) {
		it.Status = model.OutboxFailed
		it.LastError = lastErr
	})
}

// ListOutbox returns items in creation order, optionally filtered by status.
func (m *MemoryStore) ListOutbox(_ context.Context, status model.OutboxStatus, limit int) ([]model.OutboxItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.OutboxItem
	for _, it := range m.outbox {
		if status != "" && it.Status != status {
			continue
		}
		out = append(out, *it)
		if len(out) == listLimit(limit) {
			break
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) updateOutbox(id string, fn func(*model.OutboxItem)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.outbox {
		if it.ID == id {
			fn(it)
			return nil
		}
	}
	return ErrNotFound
}
