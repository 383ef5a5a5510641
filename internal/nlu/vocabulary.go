package nlu

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// KeywordSet is a group of keywords. Stems match anywhere in the text,
// tokens only as whole words.
type KeywordSet struct {
	Stems  []string `yaml:"stems"`
	Tokens []string `yaml:"tokens"`
}

// IntentVocabulary holds the keyword sets per intent. Delay folds into
// complaint.
type IntentVocabulary struct {
	Gratitude KeywordSet `yaml:"gratitude"`
	Lost      KeywordSet `yaml:"lost"`
	Complaint KeywordSet `yaml:"complaint"`
	Delay     KeywordSet `yaml:"delay"`
}

// LostVocabulary drives the lost-item bundle parser.
type LostVocabulary struct {
	Places KeywordSet `yaml:"places"`
	Items  KeywordSet `yaml:"items"`
	When   KeywordSet `yaml:"when"`
}

// Vocabulary is the complete keyword configuration of the analyzer.
type Vocabulary struct {
	Greetings             []string         `yaml:"greetings"`
	Reset                 []string         `yaml:"reset"`
	Cancel                []string         `yaml:"cancel"`
	Found                 []string         `yaml:"found"`
	ShortAcks             []string         `yaml:"short_acks"`
	GratitudePlaceholders []string         `yaml:"gratitude_placeholders"`
	Intents               IntentVocabulary `yaml:"intents"`
	ComplaintEvidence     []string         `yaml:"complaint_evidence"`
	TrainWords            []string         `yaml:"train_words"`
	CarWords              []string         `yaml:"car_words"`
	Profanity             []string         `yaml:"profanity"`
	Lost                  LostVocabulary   `yaml:"lost"`
}

// DefaultVocabulary parses the embedded vocabulary.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

// LoadVocabulary reads a vocabulary file. An empty path yields the
// embedded default.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates a YAML vocabulary. Every entry is
// normalized the same way message text is.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	v.normalize()
	if err := v.validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

func (v *Vocabulary) validate() error {
	var errs []error
	if len(v.Greetings) == 0 {
		errs = append(errs, errors.New("greetings must not be empty"))
	}
	if len(v.CarWords) == 0 {
		errs = append(errs, errors.New("car_words must not be empty"))
	}
	for name, set := range map[string]KeywordSet{
		"intents.gratitude": v.Intents.Gratitude,
		"intents.lost":      v.Intents.Lost,
		"intents.complaint": v.Intents.Complaint,
	} {
		if len(set.Stems)+len(set.Tokens) == 0 {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		}
	}
	return errors.Join(errs...)
}

func (v *Vocabulary) normalize() {
	lists := []*[]string{
		&v.Greetings, &v.Reset, &v.Cancel, &v.Found, &v.ShortAcks,
		&v.GratitudePlaceholders, &v.ComplaintEvidence, &v.TrainWords,
		&v.CarWords, &v.Profanity,
	}
	for _, set := range []*KeywordSet{
		&v.Intents.Gratitude, &v.Intents.Lost, &v.Intents.Complaint, &v.Intents.Delay,
		&v.Lost.Places, &v.Lost.Items, &v.Lost.When,
	} {
		lists = append(lists, &set.Stems, &set.Tokens)
	}
	for _, list := range lists {
		out := (*list)[:0]
		for _, w := range *list {
			if w = Normalize(w); w != "" {
				out = append(out, w)
			}
		}
		*list = out
	}
}

// match reports whether the normalized text or its tokens hit the set.
func (s KeywordSet) match(norm string, tokens map[string]struct{}) bool {
	for _, stem := range s.Stems {
		if strings.Contains(norm, stem) {
			return true
		}
	}
	for _, tok := range s.Tokens {
		if _, ok := tokens[tok]; ok {
			return true
		}
	}
	return false
}
