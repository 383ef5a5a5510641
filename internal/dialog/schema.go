package dialog

import "github.com/capitalize-ai/rail-support-bot/internal/model"

var requiredSlots = map[model.CaseType][]model.Slot{
	model.CaseComplaint:    {model.SlotTrain, model.SlotCarNumber, model.SlotComplaintText},
	model.CaseLostAndFound: {model.SlotTrain, model.SlotCarNumber, model.SlotPlace, model.SlotItem, model.SlotWhen},
	model.CaseGratitude:    {model.SlotTrain, model.SlotCarNumber, model.SlotGratitudeText},
}

// caseBundles maps a case type to the question asked for its own fields.
var caseBundles = map[model.CaseType]model.Bundle{
	model.CaseLostAndFound: model.BundleLost,
	model.CaseComplaint:    model.BundleComplaintText,
	model.CaseGratitude:    model.BundleGratitude,
}

// MissingSlots returns the required slots of c that are still empty, in
// schema order. A gratitude text for which isPlaceholder returns true is
// treated as missing.
func MissingSlots(c *model.CaseState, isPlaceholder func(string) bool) []model.Slot {
	var missing []model.Slot
	for _, slot := range requiredSlots[c.Type] {
		v := c.Slots.Get(slot)
		if v == "" {
			missing = append(missing, slot)
			continue
		}
		if slot == model.SlotGratitudeText && isPlaceholder != nil && isPlaceholder(v) {
			missing = append(missing, slot)
		}
	}
	return missing
}

func (e *Engine) missingSlots(c *model.CaseState) []model.Slot {
	return MissingSlots(c, e.analyzer.IsGratitudePlaceholder)
}

func bundleSlots(b model.Bundle) []model.Slot {
	return append([]model.Slot(nil), model.BundleSlots[b]...)
}
