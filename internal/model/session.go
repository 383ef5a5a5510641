package model

// Bundle names a group of slots requested together in one question.
type Bundle string

const (
	BundleTrainCar      Bundle = "train_car"
	BundleLost          Bundle = "lost_bundle"
	BundleGratitude     Bundle = "gratitude_bundle"
	BundleComplaintText Bundle = "complaint_text"
)

// BundleSlots is the fixed slot shape of every known bundle.
var BundleSlots = map[Bundle][]Slot{
	BundleTrainCar:      {SlotTrain, SlotCarNumber},
	BundleLost:          {SlotPlace, SlotItem, SlotWhen},
	BundleGratitude:     {SlotStaffName, SlotGratitudeText},
	BundleComplaintText: {SlotComplaintText},
}

// SharedSlots are the trip details reusable across all cases of a session.
type SharedSlots struct {
	Train     string `json:"train,omitempty"`
	CarNumber int    `json:"carNumber,omitempty"`
}

// Pending is the single outstanding question of a session.
type Pending struct {
	Slots   []Slot     `json:"slots,omitempty"`
	Bundle  Bundle     `json:"bundle,omitempty"`
	Targets []CaseType `json:"targets,omitempty"`
}

// Active reports whether a question is outstanding.
func (p Pending) Active() bool {
	return len(p.Slots) > 0
}

// Has reports whether slot is part of the outstanding question.
func (p Pending) Has(slot Slot) bool {
	for _, s := range p.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Targeting reports whether the outstanding question targets case type t.
func (p Pending) Targeting(t CaseType) bool {
	for _, tt := range p.Targets {
		if tt == t {
			return true
		}
	}
	return false
}

// LastBot echoes the last reply sent to the conversation.
type LastBot struct {
	Text       string `json:"text,omitempty"`
	AskedSlots []Slot `json:"askedSlots,omitempty"`
}

// Moderation tracks the repetition state used for flood detection.
type Moderation struct {
	PrevText    string `json:"prevText,omitempty"`
	RepeatCount int    `json:"repeatCount,omitempty"`
}

// Session is the persisted per-conversation dialog state.
type Session struct {
	Shared     SharedSlots `json:"shared"`
	Pending    Pending     `json:"pending"`
	Cases      Cases       `json:"cases"`
	LastBot    LastBot     `json:"lastBot"`
	Moderation Moderation  `json:"moderation"`
}

// NewSession returns the default empty session shape.
func NewSession() *Session {
	return &Session{}
}

// Phase is a coarse, derived view of where a conversation stands.
type Phase string

const (
	PhaseNoCase         Phase = "no_case"
	PhaseAwaitingShared Phase = "awaiting_shared"
	PhaseAwaitingBundle Phase = "awaiting_bundle"
	PhaseIdle           Phase = "idle"
)

// Phase derives the coarse phase from the case count and pending question.
func (s *Session) Phase() Phase {
	switch {
	case s.Cases.Len() == 0:
		return PhaseNoCase
	case s.Pending.Active() && s.Pending.Bundle == BundleTrainCar:
		return PhaseAwaitingShared
	case s.Pending.Active():
		return PhaseAwaitingBundle
	default:
		return PhaseIdle
	}
}
