package nlu

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

const (
	minExclamations = 3
	minCapsLetters  = 8
	capsRatio       = 0.6
	floodRepeats    = 2
)

type toneResult struct {
	angry      bool
	flood      bool
	tone       model.Tone
	moderation model.Moderation
}

func compileProfanity(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(strings.Join(quoted, "|"))
}

// detectTone flags aggressive or flooding messages and advances the
// repetition state. A message is a flood when it repeats the previous
// normalized message for the second time in a row or more.
func (a *Analyzer) detectTone(raw, norm string, prev model.Moderation, gratitude bool) toneResult {
	var res toneResult

	if norm != "" {
		repeat := 0
		if norm == prev.PrevText {
			repeat = prev.RepeatCount + 1
		}
		res.moderation = model.Moderation{PrevText: norm, RepeatCount: repeat}
		res.flood = repeat >= floodRepeats
	}

	res.angry = res.flood ||
		(a.profanity != nil && a.profanity.MatchString(norm)) ||
		strings.Count(raw, "!") >= minExclamations ||
		shouting(raw)

	switch {
	case res.angry:
		res.tone = model.ToneAngry
	case gratitude:
		res.tone = model.TonePositive
	default:
		res.tone = model.ToneNeutral
	}
	return res
}

// shouting reports whether most letters of the text are capitals.
func shouting(raw string) bool {
	letters, upper := 0, 0
	for _, r := range raw {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters < minCapsLetters {
		return false
	}
	return float64(upper)/float64(letters) >= capsRatio
}
