package nlu

import "unicode/utf8"

// MeaningThreshold gates whether a low-signal message without an
// outstanding question gets a clarification prompt.
const MeaningThreshold = 30

type scoreInput struct {
	norm     string
	length   int
	pending  bool
	entity   bool
	greeting bool
	intent   bool
	shortAck bool
}

type scoreRule struct {
	name  string
	when  func(in scoreInput) bool
	score int
}

// scoreRules are evaluated top to bottom; the first match wins.
var scoreRules = []scoreRule{
	{"empty", func(in scoreInput) bool { return in.norm == "" }, 0},
	{"pending_entity", func(in scoreInput) bool { return in.pending && in.entity }, 90},
	{"pending_short", func(in scoreInput) bool { return in.pending && in.length <= 12 }, 70},
	{"greeting", func(in scoreInput) bool { return in.greeting }, 0},
	{"intent_keyword", func(in scoreInput) bool { return in.intent }, 90},
	{"entity", func(in scoreInput) bool { return in.entity }, 75},
	{"tiny", func(in scoreInput) bool { return in.length <= 2 }, 5},
	{"short_ack", func(in scoreInput) bool { return in.length <= 5 && in.shortAck }, 10},
	{"long", func(in scoreInput) bool { return in.length >= 15 }, 60},
}

const defaultScore = 35

// meaningScore estimates on a 0-100 scale whether a message carries
// actionable content. It returns the score and the name of the rule that
// produced it.
func meaningScore(in scoreInput) (int, string) {
	in.length = utf8.RuneCountInString(in.norm)
	for _, r := range scoreRules {
		if r.when(in) {
			return r.score, r.name
		}
	}
	return defaultScore, "default"
}
