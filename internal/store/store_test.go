package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

const testKey = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "KTZH")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestBadger(t *testing.T) *BadgerSessions {
	t.Helper()
	b, err := OpenBadgerSessions("", logger.NewNop())
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func sampleSession() *model.Session {
	s := model.NewSession()
	s.Shared = model.SharedSlots{Train: "T58", CarNumber: 7}
	s.Cases.Open(model.CaseComplaint)
	s.Cases.Complaint.Slots = model.CaseSlots{Train: "T58", CarNumber: 7}
	s.Pending = model.Pending{
		Slots:   []model.Slot{model.SlotComplaintText},
		Bundle:  model.BundleComplaintText,
		Targets: []model.CaseType{model.CaseComplaint},
	}
	s.Moderation = model.Moderation{PrevText: "complaint", RepeatCount: 1}
	return s
}

func TestSessionStores(t *testing.T) {
	stores := map[string]SessionStore{
		"memory": NewMemoryStore(""),
		"badger": newTestBadger(t),
	}
	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := st.GetSession(ctx, testKey)
			if err != nil || got != nil {
				t.Fatalf("expected nil session for unseen key, got %+v, %v", got, err)
			}

			want := sampleSession()
			if err := st.UpsertSession(ctx, testKey, want); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			got, err = st.GetSession(ctx, testKey)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("expected %+v, got %+v", want, got)
			}

			if err := st.ResetSession(ctx, testKey); err != nil {
				t.Fatalf("reset: %v", err)
			}
			got, _ = st.GetSession(ctx, testKey)
			if !reflect.DeepEqual(got, model.NewSession()) {
				t.Errorf("expected default session after reset, got %+v", got)
			}
		})
	}
}

func TestTicketIDFormat(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)
	id, err := newTicketID("", testKey, now)
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^KTZH-20260309-9F86D0-[0-9A-F]{6}$`).MatchString(id) {
		t.Errorf("unexpected ticket id %q", id)
	}
	short, _ := newTicketID("RB", "ab", now)
	if !regexp.MustCompile(`^RB-20260309-AB-[0-9A-F]{6}$`).MatchString(short) {
		t.Errorf("unexpected ticket id for short key %q", short)
	}
}

func TestRecordStores(t *testing.T) {
	stores := map[string]RecordStore{
		"memory": NewMemoryStore("KTZH"),
		"sqlite": newTestSQLite(t),
	}
	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			testMessages(t, st)
			testCases(t, st)
			testOutbox(t, st)
			testFollowups(t, st)
		})
	}
}

func testMessages(t *testing.T, st RecordStore) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"hello", "T58, car 7", "complaint"} {
		rec := &model.MessageRecord{
			ConversationKey: testKey,
			ChatID:          "77010000000",
			ChannelID:       "ch-1",
			ChatType:        "whatsapp",
			Direction:       model.DirectionIn,
			Text:            text,
			Timestamp:       base.Add(time.Duration(i) * time.Second),
			RawPayload:      []byte(`{"text":"` + text + `"}`),
		}
		if err := st.AddMessage(ctx, rec); err != nil {
			t.Fatalf("add message: %v", err)
		}
		if rec.ID == "" {
			t.Error("expected message id assigned")
		}
	}
	if err := st.AddMessage(ctx, &model.MessageRecord{ConversationKey: "other", Direction: model.DirectionOut, Text: "x", Timestamp: base}); err != nil {
		t.Fatal(err)
	}

	msgs, err := st.ListMessages(ctx, testKey, 2)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "T58, car 7" || msgs[1].Text != "complaint" {
		t.Fatalf("expected the last two messages oldest first, got %+v", msgs)
	}
	if msgs[1].ChatID != "77010000000" || !msgs[1].Timestamp.Equal(base.Add(2*time.Second)) {
		t.Errorf("expected metadata preserved, got %+v", msgs[1])
	}
	if string(msgs[1].RawPayload) != `{"text":"complaint"}` {
		t.Errorf("expected raw payload preserved, got %s", msgs[1].RawPayload)
	}
}

func testCases(t *testing.T, st RecordStore) {
	ctx := context.Background()
	payload := model.CasePayload{
		Type:   model.CaseComplaint,
		Shared: model.SharedSlots{Train: "T58", CarNumber: 7},
		Slots:  model.CaseSlots{Train: "T58", CarNumber: 7, ComplaintText: "no water in the toilet"},
	}
	id, err := st.CreateCase(ctx, testKey, model.CaseComplaint, payload)
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if !regexp.MustCompile(`^KTZH-\d{8}-9F86D0-[0-9A-F]{6}$`).MatchString(id) {
		t.Errorf("unexpected ticket id %q", id)
	}

	got, err := st.GetCase(ctx, id)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if got.Type != model.CaseComplaint || got.ConversationKey != testKey || got.Status != "open" {
		t.Errorf("unexpected case record %+v", got)
	}
	if !reflect.DeepEqual(got.Payload, payload) {
		t.Errorf("expected payload %+v, got %+v", payload, got.Payload)
	}

	if _, err := st.GetCase(ctx, "KTZH-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	second, err := st.CreateCase(ctx, testKey, model.CaseGratitude, model.CasePayload{Type: model.CaseGratitude})
	if err != nil {
		t.Fatal(err)
	}
	list, err := st.ListCases(ctx, 10)
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(list))
	}
	ids := map[string]bool{list[0].TicketID: true, list[1].TicketID: true}
	if !ids[id] || !ids[second] {
		t.Errorf("expected both tickets listed, got %v", ids)
	}
}

// setClock replaces the store clock for the rest of the test.
func setClock(t *testing.T, st RecordStore, now func() time.Time) {
	t.Helper()
	switch s := st.(type) {
	case *MemoryStore:
		prev := s.now
		s.now = now
		t.Cleanup(func() { s.now = prev })
	case *SQLiteStore:
		prev := s.now
		s.now = now
		t.Cleanup(func() { s.now = prev })
	default:
		t.Fatalf("unexpected store %T", st)
	}
}

func testFollowups(t *testing.T, st RecordStore) {
	ctx := context.Background()
	key := "fe" + testKey[2:]
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	setClock(t, st, func() time.Time { return clock })

	if err := st.AppendFollowup(ctx, &model.CaseFollowup{ConversationKey: key, Text: "hello"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a case, got %v", err)
	}

	first, err := st.CreateCase(ctx, key, model.CaseLostAndFound, model.CasePayload{Type: model.CaseLostAndFound})
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Minute)
	latest, err := st.CreateCase(ctx, key, model.CaseComplaint, model.CasePayload{Type: model.CaseComplaint})
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Minute)

	text := "the bag is blue " + strings.Repeat("with a red tag ", 700)
	f := &model.CaseFollowup{ConversationKey: key, Text: text, ChatID: "77010000000", ChatType: "whatsapp"}
	if err := st.AppendFollowup(ctx, f); err != nil {
		t.Fatalf("append followup: %v", err)
	}
	if f.TicketID != latest || f.ID == "" || !f.CreatedAt.Equal(clock) {
		t.Errorf("expected followup on %s at %v, got %+v", latest, clock, f)
	}

	got, err := st.GetCase(ctx, latest)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if len(got.Followups) != 1 {
		t.Fatalf("expected one followup, got %d", len(got.Followups))
	}
	fu := got.Followups[0]
	if fu.Text != text || fu.ChatID != "77010000000" || fu.ChannelID != "" || fu.ConversationKey != key {
		t.Errorf("unexpected stored followup %+v", fu)
	}

	older, err := st.GetCase(ctx, first)
	if err != nil {
		t.Fatal(err)
	}
	if len(older.Followups) != 0 {
		t.Errorf("expected no followups on the older ticket, got %d", len(older.Followups))
	}
}

func testOutbox(t *testing.T, st RecordStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := st.ClaimOutbox(ctx, now)
	if err != nil || got != nil {
		t.Fatalf("expected nothing to claim, got %+v, %v", got, err)
	}

	reply := &model.OutboxItem{Kind: model.OutboxReply, ChatID: "7701", ChannelID: "ch-1", ChatType: "whatsapp", Text: "hi", NextAttemptAt: now.Add(-time.Minute)}
	later := &model.OutboxItem{Kind: model.OutboxOps, ChatID: "ops", Text: "ticket", TicketID: "KTZH-1", CaseType: model.CaseComplaint, NextAttemptAt: now.Add(time.Hour)}
	for _, it := range []*model.OutboxItem{reply, later} {
		if err := st.EnqueueOutbox(ctx, it); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	claimed, err := st.ClaimOutbox(ctx, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != reply.ID {
		t.Fatalf("expected the due reply to be claimed, got %+v", claimed)
	}
	if claimed.Status != model.OutboxSending || claimed.Attempts != 1 {
		t.Errorf("expected sending with one attempt, got %s/%d", claimed.Status, claimed.Attempts)
	}
	if again, _ := st.ClaimOutbox(ctx, now); again != nil {
		t.Errorf("expected a claimed item not to be handed out twice, got %+v", again)
	}

	if err := st.RetryOutbox(ctx, claimed.ID, "timeout", now.Add(-time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	claimed, _ = st.ClaimOutbox(ctx, now)
	if claimed == nil || claimed.Attempts != 2 || claimed.LastError != "timeout" {
		t.Fatalf("expected retried item claimable with attempts 2, got %+v", claimed)
	}
	if err := st.MarkOutboxSent(ctx, claimed.ID, now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	claimed, _ = st.ClaimOutbox(ctx, now.Add(2*time.Hour))
	if claimed == nil || claimed.ID != later.ID || claimed.TicketID != "KTZH-1" {
		t.Fatalf("expected the ops item once due, got %+v", claimed)
	}
	if err := st.FailOutbox(ctx, claimed.ID, "bad request"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	sent, _ := st.ListOutbox(ctx, model.OutboxSent, 10)
	if len(sent) != 1 || sent[0].SentAt == nil {
		t.Errorf("expected one sent item with timestamp, got %+v", sent)
	}
	failed, _ := st.ListOutbox(ctx, model.OutboxFailed, 10)
	if len(failed) != 1 || failed[0].LastError != "bad request" {
		t.Errorf("expected one failed item, got %+v", failed)
	}
	if err := st.MarkOutboxSent(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown item, got %v", err)
	}
}

func TestCompositeServesBoth(t *testing.T) {
	mem := NewMemoryStore("KTZH")
	c := NewComposite(newTestBadger(t), mem)
	ctx := context.Background()

	if err := c.UpsertSession(ctx, testKey, sampleSession()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateCase(ctx, testKey, model.CaseComplaint, model.CasePayload{}); err != nil {
		t.Fatal(err)
	}
	if s, _ := mem.GetSession(ctx, testKey); s != nil {
		t.Error("expected sessions to go to the session store only")
	}
}
