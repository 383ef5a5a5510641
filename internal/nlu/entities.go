package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	trainPattern   = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])[tт]\s*-?\s*(\d{1,4})(?:[^\p{N}]|$)`)
	bareCarPattern = regexp.MustCompile(`^\d{1,2}$`)
)

// entityMatcher recognizes train identifiers and car numbers.
type entityMatcher struct {
	carAfterWord  *regexp.Regexp
	carBeforeWord *regexp.Regexp
	trainWords    []string
	carWords      []string
}

func newEntityMatcher(v *Vocabulary) *entityMatcher {
	words := make([]string, 0, len(v.CarWords))
	for _, w := range v.CarWords {
		words = append(words, regexp.QuoteMeta(w))
	}
	// Longest first so that "cars" wins over "car".
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	alt := strings.Join(words, "|")

	return &entityMatcher{
		carAfterWord:  regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + alt + `)\s*(?:№|#|no\.?)?\s*(\d{1,2})(?:[^\p{N}]|$)`),
		carBeforeWord: regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(\d{1,2})\s*-?\s*(?:` + alt + `)(?:[^\p{L}]|$)`),
		trainWords:    v.TrainWords,
		carWords:      v.CarWords,
	}
}

// ExtractTrain returns the canonical "T<digits>" train id, or "" when the
// text names no train.
func ExtractTrain(text string) string {
	m := trainPattern.FindStringSubmatch(Normalize(text))
	if m == nil {
		return ""
	}
	return "T" + m[1]
}

// extractCar returns the car number in [1,99], or 0 when absent. It tries
// "car № N", then "N car", then a reply made of a bare short number.
func (e *entityMatcher) extractCar(text string) int {
	norm := Normalize(text)
	for _, re := range []*regexp.Regexp{e.carAfterWord, e.carBeforeWord} {
		if m := re.FindStringSubmatch(norm); m != nil {
			if n := carNumber(m[1]); n > 0 {
				return n
			}
		}
	}
	if bareCarPattern.MatchString(norm) {
		return carNumber(norm)
	}
	return 0
}

// hasTrainCarToken reports whether the text mentions a train or car, either
// as an extractable entity or as a bare train/car word.
func (e *entityMatcher) hasTrainCarToken(norm string, tokens map[string]struct{}) bool {
	if ExtractTrain(norm) != "" || e.extractCar(norm) > 0 {
		return true
	}
	for _, list := range [][]string{e.trainWords, e.carWords} {
		for _, w := range list {
			if _, ok := tokens[w]; ok {
				return true
			}
		}
	}
	return false
}

func carNumber(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > 99 {
		return 0
	}
	return n
}
