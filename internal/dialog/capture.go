package dialog

import (
	"unicode/utf8"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/nlu"
)

// maxBareComplaintLen bounds messages like "complaint, car 7" that
// name the trip but do not yet describe the incident.
const maxBareComplaintLen = 20

// mergeShared copies extracted train and car into the shared slots without
// overwriting values already known.
func mergeShared(shared *model.SharedSlots, res *nlu.Result) {
	if shared.Train == "" && res.Train != "" {
		shared.Train = res.Train
	}
	if shared.CarNumber == 0 && res.CarNumber > 0 {
		shared.CarNumber = res.CarNumber
	}
}

// openCases instantiates a case for every detected intent that has none.
func openCases(sess *model.Session, intents []model.CaseType) []model.CaseType {
	var opened []model.CaseType
	for _, t := range intents {
		if sess.Cases.Open(t) {
			opened = append(opened, t)
		}
	}
	return opened
}

// captureFreeText stores the raw message as the narrative field of the
// collecting cases it describes.
func (e *Engine) captureFreeText(sess *model.Session, res *nlu.Result, raw string) {
	if c := sess.Cases.Complaint; c != nil && !c.Done() && res.ComplaintText != "" {
		if !e.bareComplaint(raw) {
			c.Slots.SetText(model.SlotComplaintText, res.ComplaintText)
		}
	}
	if c := sess.Cases.Gratitude; c != nil && !c.Done() && res.GratitudeText != "" {
		e.setGratitudeText(&c.Slots, res.GratitudeText)
	}
	if c := sess.Cases.LostAndFound; c != nil && !c.Done() && res.LostHint != "" {
		if utf8.RuneCountInString(res.LostHint) >= minItemDetailsLen {
			c.Slots.SetText(model.SlotItemDetails, res.LostHint)
		}
	}
}

// bareComplaint reports whether a complaint-flagged message only opens the
// complaint: it is short, names a train or car, and carries no incident
// marker.
func (e *Engine) bareComplaint(raw string) bool {
	return utf8.RuneCountInString(raw) <= maxBareComplaintLen &&
		e.analyzer.HasTrainCarToken(raw) &&
		!e.analyzer.HasComplaintEvidence(raw)
}

// propagateShared copies the shared trip details into every collecting case
// that does not have them yet.
func propagateShared(sess *model.Session) {
	for _, c := range sess.Cases.Active() {
		if c.Done() {
			continue
		}
		if c.Slots.Train == "" {
			c.Slots.Train = sess.Shared.Train
		}
		c.Slots.SetCar(sess.Shared.CarNumber)
	}
}
