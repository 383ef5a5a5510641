package dialog

import (
	"unicode/utf8"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/nlu"
)

const (
	minItemDetailsLen = 10
	minStaffNameLen   = 2
	minFreeTextLen    = 5
)

// fillPending answers the outstanding question from this message. Only the
// pending slots are considered, only the targeted cases are written, and a
// non-empty field is never overwritten. It reports whether any field changed.
func (e *Engine) fillPending(sess *model.Session, res *nlu.Result, raw string) bool {
	p := sess.Pending
	length := utf8.RuneCountInString(raw)
	changed := false

	switch p.Bundle {
	case model.BundleTrainCar:
		if p.Has(model.SlotTrain) && sess.Shared.Train == "" && res.Train != "" {
			sess.Shared.Train = res.Train
			changed = true
		}
		if p.Has(model.SlotCarNumber) && sess.Shared.CarNumber == 0 && res.CarNumber > 0 {
			sess.Shared.CarNumber = res.CarNumber
			changed = true
		}

	case model.BundleLost:
		c := targetCase(sess, model.CaseLostAndFound)
		if c == nil {
			break
		}
		m := e.analyzer.ScanLost(raw)
		if m.Place && p.Has(model.SlotPlace) && c.Slots.SetText(model.SlotPlace, raw) {
			changed = true
		}
		if m.Item && p.Has(model.SlotItem) && c.Slots.SetText(model.SlotItem, raw) {
			changed = true
		}
		if m.When && p.Has(model.SlotWhen) && c.Slots.SetText(model.SlotWhen, raw) {
			changed = true
		}
		if length >= minItemDetailsLen && c.Slots.SetText(model.SlotItemDetails, raw) {
			changed = true
		}

	case model.BundleGratitude:
		c := targetCase(sess, model.CaseGratitude)
		if c == nil {
			break
		}
		if length >= minStaffNameLen && p.Has(model.SlotStaffName) && c.Slots.SetText(model.SlotStaffName, raw) {
			changed = true
		}
		if length >= minFreeTextLen && p.Has(model.SlotGratitudeText) && e.setGratitudeText(&c.Slots, raw) {
			changed = true
		}

	case model.BundleComplaintText:
		c := targetCase(sess, model.CaseComplaint)
		if c == nil {
			break
		}
		if length >= minFreeTextLen && p.Has(model.SlotComplaintText) && c.Slots.SetText(model.SlotComplaintText, raw) {
			changed = true
		}
	}

	return changed
}

// targetCase returns the collecting case of type t when the pending
// question targets it.
func targetCase(sess *model.Session, t model.CaseType) *model.CaseState {
	if !sess.Pending.Targeting(t) {
		return nil
	}
	c := sess.Cases.Get(t)
	if c == nil || c.Done() {
		return nil
	}
	return c
}

// setGratitudeText fills the gratitude text. A placeholder such as "thanks"
// is the only value that may later be replaced, and only by a substantive
// text.
func (e *Engine) setGratitudeText(s *model.CaseSlots, text string) bool {
	if s.GratitudeText != "" && e.analyzer.IsGratitudePlaceholder(s.GratitudeText) {
		if text == "" || e.analyzer.IsGratitudePlaceholder(text) {
			return false
		}
		s.GratitudeText = text
		return true
	}
	return s.SetText(model.SlotGratitudeText, text)
}
