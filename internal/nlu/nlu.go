// Package nlu implements rule-based understanding of passenger messages:
// normalization, train/car extraction, intent classification, meaning
// scoring and tone detection. Everything is lexical; an Analyzer is
// immutable once built and safe for concurrent use.
package nlu

import (
	"regexp"
	"strings"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// Context is the conversation state a message is analyzed against.
type Context struct {
	PendingSlots []model.Slot
	Moderation   model.Moderation
}

// Result is the structured reading of one message.
type Result struct {
	Normalized string
	Intents    []model.CaseType

	Train     string
	CarNumber int

	ComplaintText string
	GratitudeText string
	LostHint      string

	MeaningScore int
	ScoreRule    string

	GreetingOnly bool
	Reset        bool
	Cancel       bool
	Found        bool

	Angry      bool
	Flood      bool
	Tone       model.Tone
	Moderation model.Moderation
}

// Has reports whether intent t was detected.
func (r *Result) Has(t model.CaseType) bool {
	for _, it := range r.Intents {
		if it == t {
			return true
		}
	}
	return false
}

// HasEntity reports whether a train or car was extracted.
func (r *Result) HasEntity() bool {
	return r.Train != "" || r.CarNumber > 0
}

// Analyzer holds the compiled vocabulary.
type Analyzer struct {
	vocab        *Vocabulary
	entities     *entityMatcher
	greetings    []string
	placeholders []string
	shortAcks    map[string]struct{}
	profanity    *regexp.Regexp
}

// New compiles an analyzer from a vocabulary.
func New(v *Vocabulary) *Analyzer {
	a := &Analyzer{
		vocab:     v,
		entities:  newEntityMatcher(v),
		shortAcks: make(map[string]struct{}, len(v.ShortAcks)),
		profanity: compileProfanity(v.Profanity),
	}
	for _, g := range v.Greetings {
		if c := lettersOnly(g); c != "" {
			a.greetings = append(a.greetings, c)
		}
	}
	for _, p := range v.GratitudePlaceholders {
		if c := lettersOnly(p); c != "" {
			a.placeholders = append(a.placeholders, c)
		}
	}
	for _, w := range v.ShortAcks {
		a.shortAcks[w] = struct{}{}
	}
	return a
}

// NewDefault builds an analyzer over the embedded vocabulary.
func NewDefault() (*Analyzer, error) {
	v, err := DefaultVocabulary()
	if err != nil {
		return nil, err
	}
	return New(v), nil
}

// ExtractCar returns the car number in [1,99], or 0.
func (a *Analyzer) ExtractCar(text string) int {
	return a.entities.extractCar(text)
}

// Analyze reads one raw message. It never fails; anything it cannot
// recognize is simply absent from the result.
func (a *Analyzer) Analyze(text string, c Context) *Result {
	raw := strings.TrimSpace(text)
	norm := Normalize(text)
	tokens := tokenize(norm)

	res := &Result{
		Normalized: norm,
		Intents:    a.classifyIntents(norm, tokens),
		Train:      ExtractTrain(norm),
		CarNumber:  a.entities.extractCar(norm),
		Reset:      isCommand(norm, a.vocab.Reset),
		Cancel:     mentionsPhrase(norm, a.vocab.Cancel),
		Found:      mentionsPhrase(norm, a.vocab.Found),
	}

	if res.Has(model.CaseComplaint) {
		res.ComplaintText = raw
	}
	if res.Has(model.CaseGratitude) {
		res.GratitudeText = raw
	}
	if res.Has(model.CaseLostAndFound) {
		res.LostHint = raw
	}

	res.GreetingOnly = a.isGreetingOnly(norm, len(res.Intents) > 0, res.HasEntity())

	_, shortAck := a.shortAcks[norm]
	res.MeaningScore, res.ScoreRule = meaningScore(scoreInput{
		norm:     norm,
		pending:  len(c.PendingSlots) > 0,
		entity:   res.HasEntity(),
		greeting: res.GreetingOnly,
		intent:   len(res.Intents) > 0,
		shortAck: shortAck,
	})

	tr := a.detectTone(text, norm, c.Moderation, res.Has(model.CaseGratitude))
	res.Angry, res.Flood, res.Tone, res.Moderation = tr.angry, tr.flood, tr.tone, tr.moderation

	return res
}
