package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// timeLayout is fixed width in UTC so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const ticketIDAttempts = 3

// SQLiteStore implements RecordStore using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	ticketPrefix string
	now          func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath, ticketPrefix string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		ticketPrefix: ticketPrefix,
		now:          time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id               TEXT PRIMARY KEY,
		conversation_key TEXT NOT NULL,
		chat_id          TEXT,
		channel_id       TEXT,
		chat_type        TEXT,
		direction        TEXT NOT NULL,
		text             TEXT NOT NULL,
		ts               TEXT NOT NULL,
		raw_payload      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_messages_key_ts ON messages(conversation_key, ts);

	CREATE TABLE IF NOT EXISTS cases (
		ticket_id        TEXT PRIMARY KEY,
		conversation_key TEXT NOT NULL,
		case_type        TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'open',
		payload          TEXT NOT NULL,
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cases_key ON cases(conversation_key);
	CREATE INDEX IF NOT EXISTS idx_cases_created ON cases(created_at DESC);

	CREATE TABLE IF NOT EXISTS case_followups (
		id               TEXT PRIMARY KEY,
		ticket_id        TEXT NOT NULL REFERENCES cases(ticket_id),
		conversation_key TEXT NOT NULL,
		text             TEXT NOT NULL,
		chat_id          TEXT,
		channel_id       TEXT,
		chat_type        TEXT,
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_followups_ticket ON case_followups(ticket_id, created_at);

	CREATE TABLE IF NOT EXISTS outbox (
		id              TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		channel_id      TEXT,
		chat_id         TEXT NOT NULL,
		chat_type       TEXT,
		text            TEXT NOT NULL,
		ticket_id       TEXT,
		case_type       TEXT,
		status          TEXT NOT NULL DEFAULT 'pending',
		attempts        INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT,
		next_attempt_at TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		sent_at         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox(status, next_attempt_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// AddMessage appends a record to the message log.
func (s *SQLiteStore) AddMessage(ctx context.Context, rec *model.MessageRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	var raw *string
	if len(rec.RawPayload) > 0 {
		v := string(rec.RawPayload)
		raw = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_key, chat_id, channel_id, chat_type, direction, text, ts, raw_payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConversationKey, rec.ChatID, rec.ChannelID, rec.ChatType,
		string(rec.Direction), rec.Text, formatTime(rec.Timestamp), raw)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages of a conversation, oldest
// first.
func (s *SQLiteStore) ListMessages(ctx context.Context, key string, limit int) ([]model.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_key, chat_id, channel_id, chat_type, direction, text, ts, raw_payload
		 FROM (
		   SELECT * FROM messages WHERE conversation_key = ?
		   ORDER BY ts DESC, id DESC LIMIT ?
		 ) ORDER BY ts ASC, id ASC`, key, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageRecord
	for rows.Next() {
		var rec model.MessageRecord
		var chatID, channelID, chatType, raw sql.NullString
		var direction, ts string
		if err := rows.Scan(&rec.ID, &rec.ConversationKey, &chatID, &channelID, &chatType,
			&direction, &rec.Text, &ts, &raw); err != nil {
			return nil, err
		}
		rec.ChatID = chatID.String
		rec.ChannelID = channelID.String
		rec.ChatType = chatType.String
		rec.Direction = model.Direction(direction)
		rec.Timestamp = parseTime(ts)
		if raw.Valid {
			rec.RawPayload = json.RawMessage(raw.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateCase records a ticket for a finished case and returns its id.
func (s *SQLiteStore) CreateCase(ctx context.Context, key string, caseType model.CaseType, payload model.CasePayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	now := s.now()

	for attempt := 1; ; attempt++ {
		id, err := newTicketID(s.ticketPrefix, key, now)
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO cases (ticket_id, conversation_key, case_type, status, payload, created_at)
			 VALUES (?, ?, ?, 'open', ?, ?)`,
			id, key, string(caseType), string(data), formatTime(now))
		if err == nil {
			return id, nil
		}
		if attempt >= ticketIDAttempts || !strings.Contains(err.Error(), "UNIQUE") {
			return "", fmt.Errorf("insert case: %w", err)
		}
	}
}

const caseColumns = `ticket_id, conversation_key, case_type, status, payload, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(r rowScanner) (model.CaseRecord, error) {
	var rec model.CaseRecord
	var caseType, payload, created string
	if err := r.Scan(&rec.TicketID, &rec.ConversationKey, &caseType, &rec.Status, &payload, &created); err != nil {
		return rec, err
	}
	rec.Type = model.CaseType(caseType)
	rec.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return rec, fmt.Errorf("decode payload of %s: %w", rec.TicketID, err)
	}
	return rec, nil
}

// GetCase returns a ticket by id.
func (s *SQLiteStore) GetCase(ctx context.Context, ticketID string) (*model.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE ticket_id = ?`, ticketID)
	rec, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Followups, err = s.listFollowups(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListCases returns the newest tickets first.
func (s *SQLiteStore) ListCases(ctx context.Context, limit int) ([]model.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases ORDER BY created_at DESC, ticket_id DESC LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendFollowup attaches f to the newest case of its conversation.
func (s *SQLiteStore) AppendFollowup(ctx context.Context, f *model.CaseFollowup) error {
	var ticketID string
	err := s.db.QueryRowContext(ctx,
		`SELECT ticket_id FROM cases WHERE conversation_key = ?
		 ORDER BY created_at DESC, ticket_id DESC LIMIT 1`, f.ConversationKey).Scan(&ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find latest case: %w", err)
	}

	if f.ID == "" {
		f.ID = ulid.Make().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	f.TicketID = ticketID
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO case_followups (id, ticket_id, conversation_key, text, chat_id, channel_id, chat_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TicketID, f.ConversationKey, f.Text,
		nullString(f.ChatID), nullString(f.ChannelID), nullString(f.ChatType), formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert followup: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listFollowups(ctx context.Context, ticketID string) ([]model.CaseFollowup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket_id, conversation_key, text, chat_id, channel_id, chat_type, created_at
		 FROM case_followups WHERE ticket_id = ? ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CaseFollowup
	for rows.Next() {
		var f model.CaseFollowup
		var chatID, channelID, chatType sql.NullString
		var created string
		if err := rows.Scan(&f.ID, &f.TicketID, &f.ConversationKey, &f.Text,
			&chatID, &channelID, &chatType, &created); err != nil {
			return nil, err
		}
		f.ChatID = chatID.String
		f.ChannelID = channelID.String
		f.ChatType = chatType.String
		f.CreatedAt = parseTime(created)
		out = append(out, f)
	}
	return out, rows.Err()
}

// EnqueueOutbox adds a pending delivery.
func (s *SQLiteStore) EnqueueOutbox(ctx context.Context, item *model.OutboxItem) error {
	now := s.now()
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	item.Status = model.OutboxPending
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now.UTC()
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = now.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (id, kind, channel_id, chat_id, chat_type, text, ticket_id, case_type,
		                     status, attempts, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Kind), item.ChannelID, item.ChatID, item.ChatType, item.Text,
		nullString(item.TicketID), nullString(string(item.CaseType)),
		string(item.Status), item.Attempts, formatTime(item.NextAttemptAt), formatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert outbox item: %w", err)
	}
	return nil
}

const outboxColumns = `id, kind, channel_id, chat_id, chat_type, text, ticket_id, case_type,
	status, attempts, last_error, next_attempt_at, created_at, sent_at`

func scanOutbox(r rowScanner) (model.OutboxItem, error) {
	var it model.OutboxItem
	var kind, status, next, created string
	var channelID, chatType, ticketID, caseType, lastErr, sent sql.NullString
	if err := r.Scan(&it.ID, &kind, &channelID, &it.ChatID, &chatType, &it.Text, &ticketID, &caseType,
		&status, &it.Attempts, &lastErr, &next, &created, &sent); err != nil {
		return it, err
	}
	it.Kind = model.OutboxKind(kind)
	it.Status = model.OutboxStatus(status)
	it.ChannelID = channelID.String
	it.ChatType = chatType.String
	it.TicketID = ticketID.String
	it.CaseType = model.CaseType(caseType.String)
	it.LastError = lastErr.String
	it.NextAttemptAt = parseTime(next)
	it.CreatedAt = parseTime(created)
	if sent.Valid {
		t := parseTime(sent.String)
		it.SentAt = &t
	}
	return it, nil
}

// ClaimOutbox atomically moves the oldest due pending item to sending,
// increments its attempt counter and returns it. It returns nil when
// nothing is due.
func (s *SQLiteStore) ClaimOutbox(ctx context.Context, now time.Time) (*model.OutboxItem, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE outbox SET status = 'sending', attempts = attempts + 1
		 WHERE id = (
		   SELECT id FROM outbox
		   WHERE status = 'pending' AND next_attempt_at <= ?
		   ORDER BY next_attempt_at ASC, id ASC LIMIT 1
		 ) AND status = 'pending'
		 RETURNING `+outboxColumns, formatTime(now))
	it, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox item: %w", err)
	}
	return &it, nil
}

func (s *SQLiteStore) updateOutbox(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update outbox item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOutboxSent records a successful delivery.
func (s *SQLiteStore) MarkOutboxSent(ctx context.Context, id string, at time.Time) error {
	return s.updateOutbox(ctx,
		`UPDATE outbox SET status = 'sent', sent_at = ?, last_error = NULL WHERE id = ?`,
		formatTime(at), id)
}

// RetryOutbox puts an item back to pending until next.
func (s *SQLiteStore) RetryOutbox(ctx context.Context, id, lastErr string, next time.Time) error {
	return s.updateOutbox(ctx,
		`UPDATE outbox SET status = 'pending', last_error = ?, next_attempt_at = ? WHERE id = ?`,
		lastErr, formatTime(next), id)
}

// FailOutbox gives up on an item.
func (s *SQLiteStore) FailOutbox(ctx context.Context, id, lastErr string) error {
	return s.updateOutbox(ctx,
		`UPDATE outbox SET status = 'failed', last_error = ? WHERE id = ?`,
		lastErr, id)
}

// ListOutbox returns items in creation order, optionally filtered by status.
func (s *SQLiteStore) ListOutbox(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxItem, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, listLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OutboxItem
	for rows.Next() {
		it, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
