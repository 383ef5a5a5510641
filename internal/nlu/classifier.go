package nlu

import (
	"regexp"
	"strings"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

var timePattern = regexp.MustCompile(`\d{1,2}:\d{2}|\d+\s*(?:hours?|hrs?|h|час\p{L}*|ч)(?:[^\p{L}]|$)`)

// LostMatch reports which lost-item fields a message speaks to.
type LostMatch struct {
	Place bool
	Item  bool
	When  bool
}

// classifyIntents returns the matched labels in fixed order without
// duplicates. Delay keywords fold into complaint.
func (a *Analyzer) classifyIntents(norm string, tokens map[string]struct{}) []model.CaseType {
	var out []model.CaseType
	iv := a.vocab.Intents
	if iv.Gratitude.match(norm, tokens) {
		out = append(out, model.CaseGratitude)
	}
	if iv.Lost.match(norm, tokens) {
		out = append(out, model.CaseLostAndFound)
	}
	if iv.Complaint.match(norm, tokens) || iv.Delay.match(norm, tokens) {
		out = append(out, model.CaseComplaint)
	}
	return out
}

// isGreetingOnly reports whether the message is nothing but a greeting.
// Empty text counts as a greeting. A greeting that opens or closes a
// message carrying an intent or a train/car entity does not.
func (a *Analyzer) isGreetingOnly(norm string, hasIntent, hasEntity bool) bool {
	if norm == "" {
		return true
	}
	if hasIntent || hasEntity {
		return false
	}
	clean := lettersOnly(norm)
	if clean == "" {
		return false
	}
	for _, g := range a.greetings {
		if clean == g || strings.HasPrefix(clean, g+" ") || strings.HasSuffix(clean, " "+g) {
			return true
		}
	}
	return false
}

// isCommand reports whether the whole message is one of the phrases.
func isCommand(norm string, phrases []string) bool {
	if norm == "" {
		return false
	}
	clean := lettersOnly(norm)
	for _, p := range phrases {
		if norm == p || (clean != "" && clean == lettersOnly(p)) {
			return true
		}
	}
	return false
}

// mentionsPhrase reports whether any phrase occurs on word boundaries.
func mentionsPhrase(norm string, phrases []string) bool {
	clean := lettersOnly(norm)
	for _, p := range phrases {
		if containsPhrase(clean, lettersOnly(p)) {
			return true
		}
	}
	return false
}

// IsGratitudePlaceholder reports whether text is one of the fixed
// low-information gratitude phrases ("thanks", "спасибо", ...).
func (a *Analyzer) IsGratitudePlaceholder(text string) bool {
	clean := lettersOnly(Normalize(text))
	if clean == "" {
		return false
	}
	for _, p := range a.placeholders {
		if clean == p {
			return true
		}
	}
	return false
}

// HasComplaintEvidence reports whether the text carries an incident
// narrative marker.
func (a *Analyzer) HasComplaintEvidence(text string) bool {
	norm := Normalize(text)
	for _, w := range a.vocab.ComplaintEvidence {
		if strings.Contains(norm, w) {
			return true
		}
	}
	return false
}

// HasTrainCarToken reports whether the text mentions a train or a car.
func (a *Analyzer) HasTrainCarToken(text string) bool {
	norm := Normalize(text)
	return a.entities.hasTrainCarToken(norm, tokenize(norm))
}

// ScanLost matches the text against the place, item and when vocabularies.
func (a *Analyzer) ScanLost(text string) LostMatch {
	norm := Normalize(text)
	tokens := tokenize(norm)
	lv := a.vocab.Lost
	return LostMatch{
		Place: lv.Places.match(norm, tokens),
		Item:  lv.Items.match(norm, tokens),
		When:  lv.When.match(norm, tokens) || timePattern.MatchString(norm),
	}
}
