package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/nlu"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

const testKey = "abc123def456"

// fakeStore keeps sessions as JSON so that every load returns a fresh copy,
// the way a real store does.
type fakeStore struct {
	sessions  map[string][]byte
	messages  []*model.MessageRecord
	cases     []model.CasePayload
	followups []model.CaseFollowup
	resets    int

	getErr      error
	upsertErr   error
	createErr   error
	followupErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string][]byte)}
}

func (f *fakeStore) GetSession(_ context.Context, key string) (*model.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.sessions[key]
	if !ok {
		return nil, nil
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *fakeStore) UpsertSession(_ context.Context, key string, s *model.Session) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	f.sessions[key] = data
	return nil
}

func (f *fakeStore) ResetSession(ctx context.Context, key string) error {
	f.resets++
	return f.UpsertSession(ctx, key, model.NewSession())
}

func (f *fakeStore) AddMessage(_ context.Context, rec *model.MessageRecord) error {
	f.messages = append(f.messages, rec)
	return nil
}

func (f *fakeStore) CreateCase(_ context.Context, key string, caseType model.CaseType, payload model.CasePayload) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.cases = append(f.cases, payload)
	return testTicketID(key, len(f.cases)), nil
}

func (f *fakeStore) AppendFollowup(_ context.Context, fu *model.CaseFollowup) error {
	if f.followupErr != nil {
		return f.followupErr
	}
	if len(f.cases) == 0 {
		return errors.New("no case for conversation")
	}
	fu.TicketID = testTicketID(fu.ConversationKey, len(f.cases))
	f.followups = append(f.followups, *fu)
	return nil
}

func testTicketID(key string, n int) string {
	return fmt.Sprintf("TEST-%s-%d", strings.ToUpper(key[:6]), n)
}

func (f *fakeStore) session(t *testing.T) *model.Session {
	t.Helper()
	s, err := f.GetSession(context.Background(), testKey)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if s == nil {
		t.Fatal("expected a persisted session")
	}
	return s
}

func newTestEngine(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()
	a, err := nlu.NewDefault()
	if err != nil {
		t.Fatalf("load vocabulary: %v", err)
	}
	store := newFakeStore()
	return NewEngine(store, a, logger.NewNop()), store
}

func turn(t *testing.T, e *Engine, text string) *model.TurnResult {
	t.Helper()
	res, err := e.HandleTurn(context.Background(), model.TurnInput{
		Key:  testKey,
		Chat: model.ChatMeta{ChatID: "77010000000", ChannelID: "channel-1", ChatType: "whatsapp"},
		Text: text,
	})
	if err != nil {
		t.Fatalf("turn %q: %v", text, err)
	}
	return res
}

func TestGreetingOnFreshSession(t *testing.T) {
	e, store := newTestEngine(t)

	res := turn(t, e, "Hello")

	if res.Reply.Text != menuText {
		t.Errorf("expected menu reply, got %q", res.Reply.Text)
	}
	if len(res.Reply.AskedSlots) != 0 {
		t.Errorf("expected no asked slots, got %v", res.Reply.AskedSlots)
	}
	if res.Phase != model.PhaseNoCase {
		t.Errorf("expected phase %s, got %s", model.PhaseNoCase, res.Phase)
	}
	sess := store.session(t)
	if sess.Cases.Len() != 0 {
		t.Errorf("expected no cases, got %d", sess.Cases.Len())
	}
	if len(store.messages) != 1 || store.messages[0].Direction != model.DirectionIn {
		t.Errorf("expected one inbound message logged, got %d", len(store.messages))
	}
	if sess.LastBot.Text != menuText {
		t.Errorf("expected last bot echo to be the menu, got %q", sess.LastBot.Text)
	}
}

func TestEntitiesFirstThenComplaintOpener(t *testing.T) {
	e, store := newTestEngine(t)

	res := turn(t, e, "T58, car 7")
	if res.MeaningScore < nlu.MeaningThreshold {
		t.Errorf("expected high meaning score, got %d", res.MeaningScore)
	}
	if len(res.Intents) != 0 || store.session(t).Cases.Len() != 0 {
		t.Fatalf("expected no intents and no case, got intents=%v", res.Intents)
	}
	if shared := store.session(t).Shared; shared.Train != "T58" || shared.CarNumber != 7 {
		t.Fatalf("expected shared T58/7, got %+v", shared)
	}

	res = turn(t, e, "complaint, dirty car")
	if !reflect.DeepEqual(res.OpenedCases, []model.CaseType{model.CaseComplaint}) {
		t.Fatalf("expected complaint opened, got %v", res.OpenedCases)
	}
	if !reflect.DeepEqual(res.Reply.AskedSlots, []model.Slot{model.SlotComplaintText}) {
		t.Errorf("expected complaintText question, got %v", res.Reply.AskedSlots)
	}
	sess := store.session(t)
	c := sess.Cases.Complaint
	if c.Slots.ComplaintText != "" {
		t.Errorf("expected bare opener not to be stored, got %q", c.Slots.ComplaintText)
	}
	if c.Slots.Train != "T58" || c.Slots.CarNumber != 7 {
		t.Errorf("expected shared slots propagated, got %+v", c.Slots)
	}
	if sess.Pending.Bundle != model.BundleComplaintText {
		t.Errorf("expected pending %s, got %s", model.BundleComplaintText, sess.Pending.Bundle)
	}

	res = turn(t, e, "The toilet was dirty and the conductor ignored us")
	if len(res.Tickets) != 1 || res.Tickets[0].CaseType != model.CaseComplaint {
		t.Fatalf("expected one complaint ticket, got %+v", res.Tickets)
	}
	if !strings.Contains(res.Reply.Text, res.Tickets[0].TicketID) {
		t.Errorf("expected ticket id in reply, got %q", res.Reply.Text)
	}
	sess = store.session(t)
	if !sess.Cases.Complaint.Done() || sess.Cases.Complaint.Status != model.StatusDone {
		t.Error("expected complaint to be done")
	}
	if sess.Pending.Active() {
		t.Errorf("expected pending cleared, got %+v", sess.Pending)
	}
	if got := store.cases[0].Slots.ComplaintText; got != "The toilet was dirty and the conductor ignored us" {
		t.Errorf("expected complaint text in payload, got %q", got)
	}
}

func TestLostBundleCompletesInOneTurn(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "T58, car 7")
	res := turn(t, e, "lost")
	if !reflect.DeepEqual(res.Reply.AskedSlots, []model.Slot{model.SlotPlace, model.SlotItem, model.SlotWhen}) {
		t.Fatalf("expected lost bundle question, got %v", res.Reply.AskedSlots)
	}

	answer := "car 7, compartment 3, black bag, yesterday evening"
	res = turn(t, e, answer)

	sess := store.session(t)
	c := sess.Cases.LostAndFound
	for _, slot := range []model.Slot{model.SlotPlace, model.SlotItem, model.SlotWhen, model.SlotItemDetails} {
		if got := c.Slots.Get(slot); got != answer {
			t.Errorf("expected %s to hold the whole message, got %q", slot, got)
		}
	}
	if sess.Pending.Active() {
		t.Errorf("expected pending cleared, got %+v", sess.Pending)
	}
	if len(res.Tickets) != 1 || !c.Done() {
		t.Errorf("expected ticket created in the same turn, got %+v", res.Tickets)
	}
}

func TestGratitudePlaceholderReasksBundle(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "T58, car 7")
	res := turn(t, e, "thanks")
	want := []model.Slot{model.SlotStaffName, model.SlotGratitudeText}
	if !reflect.DeepEqual(res.Reply.AskedSlots, want) {
		t.Fatalf("expected gratitude bundle, got %v", res.Reply.AskedSlots)
	}

	res = turn(t, e, "thanks")
	if len(res.Tickets) != 0 {
		t.Fatalf("expected no ticket for a placeholder, got %+v", res.Tickets)
	}
	if !reflect.DeepEqual(res.Reply.AskedSlots, want) {
		t.Errorf("expected the same bundle re-asked, got %v", res.Reply.AskedSlots)
	}
	c := store.session(t).Cases.Gratitude
	if c.Slots.StaffName != "thanks" {
		t.Errorf("expected staff name filled, got %q", c.Slots.StaffName)
	}
	if c.Done() {
		t.Error("expected gratitude case to stay open")
	}

	res = turn(t, e, "Aigerim, she was very kind to my kids")
	if len(res.Tickets) != 1 || res.Tickets[0].CaseType != model.CaseGratitude {
		t.Fatalf("expected gratitude ticket, got %+v", res.Tickets)
	}
	c = store.session(t).Cases.Gratitude
	if c.Slots.GratitudeText != "Aigerim, she was very kind to my kids" {
		t.Errorf("expected substantive text to replace the placeholder, got %q", c.Slots.GratitudeText)
	}
	if c.Slots.StaffName != "thanks" {
		t.Errorf("expected staff name unchanged, got %q", c.Slots.StaffName)
	}
}

func TestMultiIntentSharesTrainCarQuestion(t *testing.T) {
	e, store := newTestEngine(t)

	res := turn(t, e, "I lost my phone and the conductor was rude")
	if len(res.OpenedCases) != 2 {
		t.Fatalf("expected two cases opened, got %v", res.OpenedCases)
	}
	if !reflect.DeepEqual(res.Reply.AskedSlots, []model.Slot{model.SlotTrain, model.SlotCarNumber}) {
		t.Fatalf("expected one combined train/car question, got %v", res.Reply.AskedSlots)
	}
	sess := store.session(t)
	if !reflect.DeepEqual(sess.Pending.Targets, []model.CaseType{model.CaseLostAndFound, model.CaseComplaint}) {
		t.Errorf("expected both cases targeted, got %v", sess.Pending.Targets)
	}
	if sess.Phase() != model.PhaseAwaitingShared {
		t.Errorf("expected phase %s, got %s", model.PhaseAwaitingShared, sess.Phase())
	}

	res = turn(t, e, "T58 car 7")
	if len(res.Tickets) != 1 || res.Tickets[0].CaseType != model.CaseComplaint {
		t.Fatalf("expected the complaint to complete, got %+v", res.Tickets)
	}
	if !reflect.DeepEqual(res.Reply.AskedSlots, []model.Slot{model.SlotPlace, model.SlotItem, model.SlotWhen}) {
		t.Errorf("expected the lost bundle next, got %v", res.Reply.AskedSlots)
	}
	if want := ticketLine(res.Tickets[0]) + "\n\n" + lostQuestion; res.Reply.Text != want {
		t.Errorf("expected ticket line followed by question %q, got %q", want, res.Reply.Text)
	}
	if sess := store.session(t); !sess.Cases.Complaint.Done() || sess.Cases.LostAndFound.Done() {
		t.Errorf("expected the complaint finalized while the lost case is still collecting")
	}
	if res.Phase != model.PhaseAwaitingBundle {
		t.Errorf("expected phase %s, got %s", model.PhaseAwaitingBundle, res.Phase)
	}
}

func TestAngryLostQuestionIsShort(t *testing.T) {
	e, _ := newTestEngine(t)

	res := turn(t, e, "I LOST MY BAG ON TRAIN T58 CAR 7!!!")
	if res.Tone != model.ToneAngry {
		t.Fatalf("expected angry tone, got %s", res.Tone)
	}
	if res.Reply.Text != lostQuestionShort {
		t.Errorf("expected short lost question, got %q", res.Reply.Text)
	}
}

func TestLowMeaningAsksForClarification(t *testing.T) {
	e, store := newTestEngine(t)

	res := turn(t, e, "?")
	if res.Reply.Text != clarifyText {
		t.Errorf("expected clarification, got %q", res.Reply.Text)
	}
	if store.session(t).Cases.Len() != 0 {
		t.Error("expected no case")
	}
}

func TestGreetingClearsPendingKeepsCases(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "my suitcase is lost")
	if !store.session(t).Pending.Active() {
		t.Fatal("expected a pending question")
	}

	res := turn(t, e, "hello")
	if res.Reply.Text != menuText {
		t.Errorf("expected menu, got %q", res.Reply.Text)
	}
	sess := store.session(t)
	if sess.Pending.Active() {
		t.Errorf("expected pending cleared, got %+v", sess.Pending)
	}
	if sess.Cases.LostAndFound == nil {
		t.Error("expected lost case kept")
	}
}

func TestDoneCaseIsNeverResubmitted(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "T58, car 7")
	turn(t, e, "complaint: the conductor was rude to us")
	if len(store.cases) != 1 {
		t.Fatalf("expected one case created, got %d", len(store.cases))
	}

	res := turn(t, e, "and the toilet was broken, another complaint")
	if len(res.OpenedCases) != 0 || len(res.Tickets) != 0 {
		t.Errorf("expected no new case or ticket, got opened=%v tickets=%v", res.OpenedCases, res.Tickets)
	}
	if res.Reply.Text != ackText {
		t.Errorf("expected generic acknowledgement, got %q", res.Reply.Text)
	}
	if len(store.cases) != 1 {
		t.Errorf("expected still one case, got %d", len(store.cases))
	}
}

func TestFollowupRecordedAgainstLatestTicket(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "Hello")
	turn(t, e, "what time is it in the capital")
	if len(store.followups) != 0 {
		t.Fatalf("expected no followup without a ticket, got %d", len(store.followups))
	}

	turn(t, e, "T58, car 7")
	created := turn(t, e, "complaint: the conductor was rude to us")
	if len(created.Tickets) != 1 {
		t.Fatalf("expected one ticket, got %d", len(created.Tickets))
	}
	before := store.session(t)

	res := turn(t, e, "  he also refused to give us blankets  ")
	if res.Reply.Text != ackText {
		t.Errorf("expected generic acknowledgement, got %q", res.Reply.Text)
	}
	if len(store.followups) != 1 {
		t.Fatalf("expected one followup, got %d", len(store.followups))
	}
	fu := store.followups[0]
	if fu.TicketID != created.Tickets[0].TicketID {
		t.Errorf("expected followup on %s, got %s", created.Tickets[0].TicketID, fu.TicketID)
	}
	if fu.Text != "he also refused to give us blankets" || fu.ChatID != "77010000000" || fu.ChatType != "whatsapp" {
		t.Errorf("unexpected followup %+v", fu)
	}
	if fu.CreatedAt.IsZero() {
		t.Error("expected followup timestamp")
	}

	after := store.session(t)
	if !reflect.DeepEqual(before.Cases, after.Cases) || !reflect.DeepEqual(before.Pending, after.Pending) {
		t.Errorf("expected cases and pending untouched by followup, got %+v / %+v", after.Cases, after.Pending)
	}
	if len(store.cases) != 1 {
		t.Errorf("expected no new case, got %d", len(store.cases))
	}
}

func TestFollowupFailureAbortsTurn(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "T58, car 7")
	turn(t, e, "complaint: the conductor was rude to us")
	before := string(store.sessions[testKey])

	store.followupErr = errors.New("disk full")
	_, err := e.HandleTurn(context.Background(), model.TurnInput{Key: testKey, Text: "he also refused to give us blankets"})
	if !errors.Is(err, store.followupErr) {
		t.Fatalf("expected followup error to propagate, got %v", err)
	}
	if after := string(store.sessions[testKey]); after != before {
		t.Error("expected session untouched by failed turn")
	}
}

func TestResetWipesSessionAndIsIdempotent(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "I lost my phone and the conductor was rude")
	turn(t, e, "T58 car 7")
	logged := len(store.messages)

	res := turn(t, e, "/start")
	if !res.Reset || res.Reply.Text != resetText {
		t.Errorf("expected reset reply, got %+v", res.Reply)
	}
	if len(store.messages) != logged {
		t.Errorf("expected reset not to be logged, got %d messages", len(store.messages))
	}
	first := store.sessions[testKey]

	turn(t, e, "start over")
	second := store.sessions[testKey]

	want, _ := json.Marshal(model.NewSession())
	if string(first) != string(want) || string(second) != string(want) {
		t.Errorf("expected default session after reset, got %s and %s", first, second)
	}
	if store.resets != 2 {
		t.Errorf("expected two resets, got %d", store.resets)
	}
}

func TestStoreFailureAbortsTurn(t *testing.T) {
	e, store := newTestEngine(t)

	turn(t, e, "T58, car 7")
	turn(t, e, "complaint, dirty car")
	before := string(store.sessions[testKey])

	store.createErr = errors.New("disk full")
	_, err := e.HandleTurn(context.Background(), model.TurnInput{Key: testKey, Text: "The air conditioning was broken all night"})
	if err == nil || !errors.Is(err, store.createErr) {
		t.Fatalf("expected create error to propagate, got %v", err)
	}
	if after := string(store.sessions[testKey]); after != before {
		t.Errorf("expected session untouched by failed turn")
	}

	store.createErr = nil
	store.getErr = errors.New("connection refused")
	if _, err := e.HandleTurn(context.Background(), model.TurnInput{Key: testKey, Text: "hello"}); err == nil {
		t.Error("expected load error to propagate")
	}
}

func TestFloodOnThirdIdenticalMessage(t *testing.T) {
	e, _ := newTestEngine(t)

	var tones []model.Tone
	for i := 0; i < 3; i++ {
		tones = append(tones, turn(t, e, "where is my bag").Tone)
	}
	if tones[1] == model.ToneAngry || tones[2] != model.ToneAngry {
		t.Errorf("expected angry only on the third message, got %v", tones)
	}
}

func TestMissingSlots(t *testing.T) {
	a, err := nlu.NewDefault()
	if err != nil {
		t.Fatal(err)
	}
	c := model.NewCase(model.CaseGratitude)
	c.Slots = model.CaseSlots{Train: "T58", CarNumber: 7, GratitudeText: "Спасибо"}
	if got := MissingSlots(c, a.IsGratitudePlaceholder); !reflect.DeepEqual(got, []model.Slot{model.SlotGratitudeText}) {
		t.Errorf("expected placeholder to count as missing, got %v", got)
	}
	if got := MissingSlots(c, nil); len(got) != 0 {
		t.Errorf("expected nothing missing without placeholder check, got %v", got)
	}

	lost := model.NewCase(model.CaseLostAndFound)
	want := []model.Slot{model.SlotTrain, model.SlotCarNumber, model.SlotPlace, model.SlotItem, model.SlotWhen}
	if got := MissingSlots(lost, nil); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestConversationInvariants replays a mixed conversation and checks the
// structural guarantees after every turn.
func TestConversationInvariants(t *testing.T) {
	e, store := newTestEngine(t)
	script := []string{
		"hi",
		"thanks to the conductor",
		"I also forgot my jacket",
		"?",
		"T12",
		"car 4",
		"on the upper shelf, grey jacket, this morning",
		"thanks",
		"Dana from car 4, very helpful",
		"the train was 2 hours late",
		"ok",
	}

	prev := snapshot(model.NewSession())
	for _, text := range script {
		turn(t, e, text)
		sess := store.session(t)

		if sess.Pending.Active() {
			want, ok := model.BundleSlots[sess.Pending.Bundle]
			if !ok || !reflect.DeepEqual(sess.Pending.Slots, want) {
				t.Errorf("after %q: pending %+v is not a known bundle", text, sess.Pending)
			}
		}

		for _, c := range sess.Cases.Active() {
			done := c.Status == model.StatusDone
			hasTicket := c.TicketID != ""
			complete := len(e.missingSlots(c)) == 0
			if done != hasTicket || hasTicket != complete {
				t.Errorf("after %q: %s done=%v ticket=%v complete=%v", text, c.Type, done, hasTicket, complete)
			}
		}

		cur := snapshot(sess)
		for k, v := range prev {
			if cur[k] != v && !(strings.HasSuffix(k, string(model.SlotGratitudeText)) && e.analyzer.IsGratitudePlaceholder(v)) {
				t.Errorf("after %q: slot %s changed from %q to %q", text, k, v, cur[k])
			}
		}
		prev = cur
	}

	if len(store.cases) != 3 {
		t.Errorf("expected three tickets, got %d", len(store.cases))
	}
}

func snapshot(s *model.Session) map[string]string {
	out := make(map[string]string)
	if s.Shared.Train != "" {
		out["shared.train"] = s.Shared.Train
	}
	if s.Shared.CarNumber > 0 {
		out["shared.car"] = fmt.Sprint(s.Shared.CarNumber)
	}
	all := []model.Slot{
		model.SlotTrain, model.SlotCarNumber, model.SlotComplaintText, model.SlotPlace, model.SlotItem,
		model.SlotWhen, model.SlotItemDetails, model.SlotStaffName, model.SlotGratitudeText,
	}
	for _, c := range s.Cases.Active() {
		for _, slot := range all {
			if v := c.Slots.Get(slot); v != "" {
				out[string(c.Type)+"."+string(slot)] = v
			}
		}
		if c.TicketID != "" {
			out[string(c.Type)+".ticket"] = c.TicketID
		}
	}
	return out
}
